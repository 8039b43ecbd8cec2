package assets

import (
	"bufio"
	"embed"
	"io/fs"
	"strings"
)

//go:embed words/*.txt
var wordsFS embed.FS

//go:embed sql/*.sql
var migrationsFS embed.FS

func readLines(name string) ([]string, error) {
	f, err := wordsFS.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, strings.ToLower(s))
	}
	return out, sc.Err()
}

// TierList returns the embedded word list for a difficulty tier
// ("easy", "medium" or "hard").
func TierList(tier string) ([]string, error) {
	return readLines("words/" + tier + ".txt")
}

// Migrations exposes the embedded SQL migrations rooted at "sql".
func Migrations() fs.FS {
	return migrationsFS
}
