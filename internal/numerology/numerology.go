// Package numerology computes Pythagorean numerology numbers from a name and
// a birth date. Latin and Cyrillic letters are counted and accents are folded.
package numerology

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Kind names one number of a reading.
type Kind string

const (
	LifePath    Kind = "life_path"
	Expression  Kind = "expression"
	SoulUrge    Kind = "soul_urge"
	Personality Kind = "personality"
	BirthDay    Kind = "birth_day"
	Attitude    Kind = "attitude"
)

// Kinds lists every number in display order.
func Kinds() []Kind {
	return []Kind{LifePath, Expression, SoulUrge, Personality, BirthDay, Attitude}
}

// NameBased reports whether k is derived from the name rather than the date.
func (k Kind) NameBased() bool {
	return k == Expression || k == SoulUrge || k == Personality
}

type letter struct {
	value int
	vowel bool
}

var letters = buildLetters()

func buildLetters() map[rune]letter {
	m := make(map[rune]letter, 26+33)
	add := func(alphabet, vowels string) {
		for i, r := range []rune(alphabet) {
			m[r] = letter{value: i%9 + 1, vowel: strings.ContainsRune(vowels, r)}
		}
	}
	add("ABCDEFGHIJKLMNOPQRSTUVWXYZ", "AEIOU")
	add("АБВГДЕЁЖЗИЙКЛМНОПРСТУФХЦЧШЩЪЫЬЭЮЯ", "АЕЁИОУЫЭЮЯ")
	return m
}

// Reduce sums the digits of n until a single digit or a master number
// (11, 22, 33) remains.
func Reduce(n int) int {
	if n < 0 {
		n = -n
	}
	for n > 9 && !IsMaster(n) {
		n = digitSum(n)
	}
	return n
}

// IsMaster reports whether n is a master number.
func IsMaster(n int) bool {
	return n == 11 || n == 22 || n == 33
}

func digitSum(n int) int {
	sum := 0
	for ; n > 0; n /= 10 {
		sum += n % 10
	}
	return sum
}

// Reading holds the numbers of one person. Name based numbers are zero when
// the name has no countable letters.
type Reading struct {
	Name      string
	BirthDate time.Time
	Numbers   map[Kind]int
}

// Calculate builds the reading of name and birth.
func Calculate(name string, birth time.Time) Reading {
	name = strings.TrimSpace(name)
	all, vowels, consonants := nameSums(name)

	month, day := int(birth.Month()), birth.Day()
	return Reading{
		Name:      name,
		BirthDate: birth,
		Numbers: map[Kind]int{
			LifePath:    Reduce(digitSum(month) + digitSum(day) + digitSum(birth.Year())),
			Expression:  Reduce(all),
			SoulUrge:    Reduce(vowels),
			Personality: Reduce(consonants),
			BirthDay:    Reduce(day),
			Attitude:    Reduce(digitSum(month) + digitSum(day)),
		},
	}
}

// HasName reports whether the name produced any number.
func (r Reading) HasName() bool {
	return r.Numbers[Expression] != 0
}

func nameSums(name string) (all, vowels, consonants int) {
	for _, r := range name {
		l, ok := lookup(r)
		if !ok {
			continue
		}
		all += l.value
		if l.vowel {
			vowels += l.value
		} else {
			consonants += l.value
		}
	}
	return all, vowels, consonants
}

// lookup finds the value of r, falling back to its unaccented base letter so
// "é" counts as "E" while "Ё" keeps its own place in the alphabet.
func lookup(r rune) (letter, bool) {
	r = unicode.ToUpper(r)
	if l, ok := letters[r]; ok {
		return l, true
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	base, _, err := transform.String(t, string(r))
	if err != nil || base == "" {
		return letter{}, false
	}
	l, ok := letters[[]rune(base)[0]]
	return l, ok
}
