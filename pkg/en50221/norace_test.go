//go:build !race

package en50221

const raceEnabled = false
