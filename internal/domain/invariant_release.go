//go:build !socksdebug

package domain

const panicOnInvariant = false
