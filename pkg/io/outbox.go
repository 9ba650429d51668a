package io

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/geniass/stockwatch/pkg/notify"
)

var safeFilenameReplaceRegex = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// Outbox writes each notification as a JSON file under dir/<destination>/ for a delivery
// process outside this program to pick up.
type Outbox struct {
	dir string
}

func NewOutbox(dir string) (*Outbox, error) {
	if err := os.MkdirAll(dir, os.ModeDir|0755); err != nil {
		return nil, errors.Wrapf(err, "create outbox %s", dir)
	}
	return &Outbox{dir: dir}, nil
}

func (o *Outbox) Notify(_ context.Context, destination string, msg notify.Message) error {
	destDir := filepath.Join(o.dir, SafeName(destination))
	if err := os.MkdirAll(destDir, os.ModeDir|0755); err != nil {
		return errors.Wrapf(err, "create outbox dir for %s", destination)
	}

	name := msg.CreatedAt.UTC().Format("20060102T150405.000000000Z") + "-" + SafeName(string(msg.Kind)) + "-" + msg.ID.String() + ".json"
	f, err := os.Create(filepath.Join(destDir, name))
	if err != nil {
		return errors.Wrap(err, "create outbox message")
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(msg); err != nil {
		return errors.Wrap(err, "encode outbox message")
	}
	return nil
}

func SafeName(s string) string {
	return safeFilenameReplaceRegex.ReplaceAllString(s, "-")
}

type MessageWithPath struct {
	notify.Message
	Destination string
	Path        string
}

// LoadFromDir reads every message in an outbox, oldest first.
func LoadFromDir(dir string) ([]MessageWithPath, error) {
	var ms []MessageWithPath
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		var m notify.Message
		if err := json.NewDecoder(f).Decode(&m); err != nil {
			return errors.Wrapf(err, "decode %s", path)
		}
		ms = append(ms, MessageWithPath{
			Message:     m,
			Destination: filepath.Base(filepath.Dir(path)),
			Path:        path,
		})
		return nil
	})

	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
	return ms, err
}
