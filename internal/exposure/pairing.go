package exposure

import (
	"fmt"
)

// Pairing limits of the commissioning parameters.
const (
	MaxPasscode      = 99999998
	MaxDiscriminator = 4095
)

// invalidPasscodes are rejected by controllers.
var invalidPasscodes = map[uint32]bool{
	0: true, 11111111: true, 22222222: true, 33333333: true, 44444444: true,
	55555555: true, 66666666: true, 77777777: true, 88888888: true,
	99999999: true, 12345678: true, 87654321: true,
}

// ManualPairingCode returns the 11-digit manual pairing code for a passcode
// and long discriminator, without vendor and product id.
func ManualPairingCode(passcode uint32, discriminator uint16) (string, error) {
	if passcode > MaxPasscode || invalidPasscodes[passcode] {
		return "", fmt.Errorf("invalid passcode %d", passcode)
	}
	if discriminator > MaxDiscriminator {
		return "", fmt.Errorf("invalid discriminator %d", discriminator)
	}

	short := uint32(discriminator >> 8)
	first := short >> 2
	second := (short&0x3)<<14 | passcode&0x3fff
	third := passcode >> 14

	code := fmt.Sprintf("%d%05d%04d", first, second, third)
	return code + string(rune('0'+verhoeff(code))), nil
}

// FormatPairingCode groups an 11-digit code as 4-3-4 for display.
func FormatPairingCode(code string) string {
	if len(code) != 11 {
		return code
	}
	return code[:4] + "-" + code[4:7] + "-" + code[7:]
}

var verhoeffD = [10][10]int{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
	{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
	{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
	{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
	{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
	{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
	{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
	{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
	{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
}

var verhoeffP = [8][10]int{
	{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
	{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
	{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
	{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
	{9, 4, 5, 3, 1, 2, 8, 7, 6, 0},
	{4, 2, 8, 6, 5, 7, 0, 3, 9, 1},
	{2, 7, 9, 3, 8, 0, 6, 4, 1, 5},
	{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
}

var verhoeffInv = [10]int{0, 4, 3, 2, 1, 5, 6, 7, 8, 9}

// verhoeff computes the check digit of a decimal string.
func verhoeff(digits string) int {
	c := 0
	for i := 0; i < len(digits); i++ {
		d := int(digits[len(digits)-1-i] - '0')
		c = verhoeffD[c][verhoeffP[(i+1)%8][d]]
	}
	return verhoeffInv[c]
}
