// internal/words/words.go
//
// Secret selection for the oracle.
//
// Responsibilities:
//   - Hold three difficulty tiers of candidate secrets.
//   - Draw a tier by weighted roll (40% easy, 40% medium, 20% hard),
//     then a word uniformly from that tier.
//
// Word lists:
//   - Embedded defaults live in assets/words/{easy,medium,hard}.txt.
//   - WORDS_DIR may point at a directory with the same three files to
//     override them at startup.
//
// Constraints:
//   • Every tier must be non-empty; an empty tier fails construction.
//   • Words are lowercased and trimmed; blank lines and # comments are skipped.
//   • A Selector is stateless apart from its lists and is safe for concurrent use.

package words

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/robalobadob/zoltar/assets"
)

// Difficulty is selection-time metadata for a secret. It has no effect on play.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Tiers lists the difficulties in roll order.
var Tiers = []Difficulty{Easy, Medium, Hard}

// tier weights in percent, in the same order as Tiers.
var weights = []int{40, 40, 20}

// Selector draws secrets from fixed tier lists.
type Selector struct {
	tiers map[Difficulty][]string
	intn  func(n int) int // uniform in [0, n)
}

// NewSelector builds a Selector over the given tiers.
// Returns an error if any tier is missing or empty.
func NewSelector(tiers map[Difficulty][]string) (*Selector, error) {
	cp := make(map[Difficulty][]string, len(Tiers))
	for _, d := range Tiers {
		list := normalize(tiers[d])
		if len(list) == 0 {
			return nil, fmt.Errorf("words: %s tier is empty", d)
		}
		cp[d] = list
	}
	return &Selector{tiers: cp, intn: cryptoIntn}, nil
}

// Load builds a Selector from WORDS_DIR if set, otherwise from the embedded lists.
func Load() (*Selector, error) {
	dir := os.Getenv("WORDS_DIR")
	tiers := make(map[Difficulty][]string, len(Tiers))
	for _, d := range Tiers {
		var (
			list []string
			err  error
		)
		if dir != "" {
			list, err = readWordFile(filepath.Join(dir, string(d)+".txt"))
		} else {
			list, err = assets.TierList(string(d))
		}
		if err != nil {
			return nil, fmt.Errorf("words: load %s tier: %w", d, err)
		}
		tiers[d] = list
	}
	return NewSelector(tiers)
}

// Select draws a tier by weight and a word uniformly from it.
func (s *Selector) Select() (string, Difficulty) {
	d := tierForRoll(s.intn(100))
	list := s.tiers[d]
	return list[s.intn(len(list))], d
}

// Words returns every candidate secret across all tiers.
func (s *Selector) Words() []string {
	var out []string
	for _, d := range Tiers {
		out = append(out, s.tiers[d]...)
	}
	return out
}

// Stats returns the number of words per tier.
func (s *Selector) Stats() map[Difficulty]int {
	out := make(map[Difficulty]int, len(Tiers))
	for _, d := range Tiers {
		out[d] = len(s.tiers[d])
	}
	return out
}

// tierForRoll maps a roll in [0, 100) onto a tier using the cumulative weights.
func tierForRoll(roll int) Difficulty {
	acc := 0
	for i, w := range weights {
		acc += w
		if roll < acc {
			return Tiers[i]
		}
	}
	return Tiers[len(Tiers)-1]
}

// readWordFile loads one word per line from a file.
func readWordFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out, sc.Err()
}

// normalize lowercases and trims, dropping blanks and comment lines.
func normalize(list []string) []string {
	out := make([]string, 0, len(list))
	for _, line := range list {
		w := strings.ToLower(strings.TrimSpace(line))
		if w == "" || strings.HasPrefix(w, "#") {
			continue
		}
		out = append(out, w)
	}
	return out
}

// cryptoIntn returns a uniform int in [0, n) from crypto/rand.
func cryptoIntn(n int) int {
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("words: crypto/rand: %v", err))
	}
	return int(nBig.Int64())
}
