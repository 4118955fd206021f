package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const maxSeedSize = 4 * 1024 * 1024

// SeedDocument is the YAML layout accepted by the importer:
//
//	users:
//	  - username: ada
//	    password: s3cret
//	emojis:
//	  - name: Wink
//	    smiley: "😉"
//	    category: faces
//	    keywords: [wink, flirt]
//	    created_by: ada
type SeedDocument struct {
	Users  []SeedUser  `yaml:"users"`
	Emojis []SeedEmoji `yaml:"emojis"`
}

type SeedUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type SeedEmoji struct {
	Name      string   `yaml:"name"`
	Smiley    string   `yaml:"smiley"`
	Category  string   `yaml:"category"`
	Keywords  []string `yaml:"keywords"`
	CreatedBy string   `yaml:"created_by"`
}

// ImportResult counts what an import changed.
type ImportResult struct {
	UsersCreated  int
	UsersSkipped  int
	EmojisCreated int
}

// ParseSeed decodes and validates a seed document.
func ParseSeed(data []byte) (SeedDocument, error) {
	if len(data) == 0 {
		return SeedDocument{}, errors.New("seed document is empty")
	}
	if len(data) > maxSeedSize {
		return SeedDocument{}, fmt.Errorf("seed document exceeds %d bytes", maxSeedSize)
	}
	var doc SeedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return SeedDocument{}, fmt.Errorf("parse seed: %w", err)
	}

	for i, u := range doc.Users {
		if strings.TrimSpace(u.Username) == "" || u.Password == "" {
			return SeedDocument{}, fmt.Errorf("users[%d]: username and password are required", i)
		}
	}
	for i, e := range doc.Emojis {
		if strings.TrimSpace(e.Name) == "" || strings.TrimSpace(e.Smiley) == "" {
			return SeedDocument{}, fmt.Errorf("emojis[%d]: name and smiley are required", i)
		}
		if strings.TrimSpace(e.CreatedBy) == "" {
			return SeedDocument{}, fmt.Errorf("emojis[%d]: created_by is required", i)
		}
	}
	return doc, nil
}

// LoadSeedFile reads and parses the seed document at path.
func LoadSeedFile(path string) (SeedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeedDocument{}, fmt.Errorf("read seed %s: %w", path, err)
	}
	return ParseSeed(data)
}

// ImportSeed registers the document's users and then adds its emoji.
// Existing usernames are skipped. Every emoji owner must exist once the
// users have been processed.
func ImportSeed(ctx context.Context, store *Store, auth AuthService, doc SeedDocument, now time.Time) (ImportResult, error) {
	var res ImportResult

	for _, u := range doc.Users {
		_, err := auth.Register(ctx, u.Username, u.Password)
		switch {
		case err == nil:
			res.UsersCreated++
		case errors.Is(err, ErrUsernameTaken):
			res.UsersSkipped++
		default:
			return res, fmt.Errorf("import user %s: %w", u.Username, err)
		}
	}

	owners := map[string]bool{}
	for i, e := range doc.Emojis {
		owner := strings.TrimSpace(e.CreatedBy)
		if !owners[owner] {
			if _, err := store.Users.FindByUsername(ctx, owner); err != nil {
				if errors.Is(err, ErrNotFound) {
					return res, fmt.Errorf("emojis[%d]: unknown owner %q", i, owner)
				}
				return res, err
			}
			owners[owner] = true
		}

		in := EmojiInput{
			Name:     e.Name,
			Smiley:   e.Smiley,
			Category: e.Category,
			Keywords: joinKeywords(e.Keywords),
		}
		if _, err := store.Emojis.Create(ctx, in, owner, now); err != nil {
			return res, fmt.Errorf("emojis[%d]: %w", i, err)
		}
		res.EmojisCreated++
	}

	log.WithFields(log.Fields{
		"users_created":  res.UsersCreated,
		"users_skipped":  res.UsersSkipped,
		"emojis_created": res.EmojisCreated,
	}).Info("seed imported")
	return res, nil
}

func joinKeywords(kw []string) string {
	out := make([]string, 0, len(kw))
	for _, k := range kw {
		if t := strings.TrimSpace(k); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, ", ")
}
