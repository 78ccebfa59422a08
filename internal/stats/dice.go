package stats

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
)

// Roller is the source of randomness for every roll in the game.
// *rand.Rand satisfies it; tests substitute scripted rollers.
type Roller interface {
	Intn(n int) int
}

// NewRand returns a deterministic roller for the given seed.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// RandomSeed returns a seed drawn from the operating system's CSPRNG.
func RandomSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 1
	}
	return int64(binary.LittleEndian.Uint64(b[:]) & (1<<63 - 1))
}

// D20 rolls a 20-sided die (1-20)
func D20(r Roller) int {
	return r.Intn(20) + 1
}

// D6 rolls a 6-sided die (1-6)
func D6(r Roller) int {
	return r.Intn(6) + 1
}

// D100 rolls a 100-sided die (1-100), used for percentage checks
func D100(r Roller) int {
	return r.Intn(100) + 1
}

// Roll rolls n dice with the specified number of sides and returns the total
func Roll(r Roller, n, sides int) int {
	if sides < 1 {
		return 0
	}
	total := 0
	for i := 0; i < n; i++ {
		total += r.Intn(sides) + 1
	}
	return total
}

// RollRange returns a uniform value in [min, max]. A reversed range is swapped.
func RollRange(r Roller, min, max int) int {
	if max < min {
		min, max = max, min
	}
	return min + r.Intn(max-min+1)
}

// Chance returns true with the given percentage (0-100).
func Chance(r Roller, percent int) bool {
	if percent <= 0 {
		return false
	}
	if percent >= 100 {
		return true
	}
	return r.Intn(100) < percent
}

// Dice is parsed dice notation like "2d6+2".
type Dice struct {
	Count int
	Sides int
	Bonus int
}

// Roll rolls the dice and adds the bonus. The result is never below zero.
func (d Dice) Roll(r Roller) int {
	total := Roll(r, d.Count, d.Sides) + d.Bonus
	if total < 0 {
		return 0
	}
	return total
}

// Min returns the lowest possible roll.
func (d Dice) Min() int {
	return max(0, d.Count+d.Bonus)
}

// Max returns the highest possible roll.
func (d Dice) Max() int {
	return max(0, d.Count*d.Sides+d.Bonus)
}

func (d Dice) String() string {
	switch {
	case d.Bonus > 0:
		return fmt.Sprintf("%dd%d+%d", d.Count, d.Sides, d.Bonus)
	case d.Bonus < 0:
		return fmt.Sprintf("%dd%d%d", d.Count, d.Sides, d.Bonus)
	default:
		return fmt.Sprintf("%dd%d", d.Count, d.Sides)
	}
}

// MarshalText implements encoding.TextMarshaler so dice read and write as notation.
func (d Dice) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Dice) UnmarshalText(text []byte) error {
	parsed, err := ParseDice(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// diceNotationRegex matches dice notation like "1d6", "2d4+1", "1d8-2"
var diceNotationRegex = regexp.MustCompile(`^(\d+)d(\d+)([+-]\d+)?$`)

// ParseDice parses dice notation.
// Supports formats: "1d6", "2d4", "1d8+2", "2d6-1"
func ParseDice(notation string) (Dice, error) {
	matches := diceNotationRegex.FindStringSubmatch(notation)
	if matches == nil {
		return Dice{}, fmt.Errorf("invalid dice notation %q", notation)
	}

	count, _ := strconv.Atoi(matches[1])
	sides, _ := strconv.Atoi(matches[2])
	if count < 1 || sides < 1 {
		return Dice{}, fmt.Errorf("invalid dice notation %q", notation)
	}

	bonus := 0
	if matches[3] != "" {
		bonus, _ = strconv.Atoi(matches[3])
	}

	return Dice{Count: count, Sides: sides, Bonus: bonus}, nil
}

// MustParseDice is ParseDice for package-level defaults; it panics on bad notation.
func MustParseDice(notation string) Dice {
	d, err := ParseDice(notation)
	if err != nil {
		panic(err)
	}
	return d
}
