package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Header identifies the import a result message belongs to.
type Header struct {
	ProcessID   string            `json:"process_id"`
	Catalogue   string            `json:"catalogue"`
	Entity      string            `json:"entity"`
	Source      string            `json:"source"`
	Application string            `json:"application"`
	Version     string            `json:"version"`
	Timestamp   time.Time         `json:"timestamp"`
	DependsOn   []string          `json:"depends_on"`
	Enrich      map[string]string `json:"enrich"`
	Mode        string            `json:"mode"`
	Full        bool              `json:"full"`
}

// Message is the result of one import, published once the contents are
// written.
type Message struct {
	Header      Header         `json:"header"`
	Summary     map[string]int `json:"summary"`
	ContentsRef string         `json:"contents_ref"`
}

// Publisher delivers result messages downstream.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// FilePublisher writes each message as JSON to
// <dir>/<catalogue>/<entity>/<process_id>.message.json.
type FilePublisher struct {
	Dir string
}

func (p FilePublisher) Publish(_ context.Context, msg *Message) error {
	path := p.Path(msg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create message dir: %w", err)
	}
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Path returns the file the message is written to.
func (p FilePublisher) Path(msg *Message) string {
	h := msg.Header
	return filepath.Join(p.Dir, h.Catalogue, h.Entity, h.ProcessID+".message.json")
}
