package convstore

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"time"
)

// scanMessage reads one messages row, transparently decompressing
// content when compressed=1 so callers never see the gzip+base64
// encoding.
func scanMessage(s *Store, r rowScanner) (Message, error) {
	var m Message
	var direction string
	var compressed int

	if err := r.Scan(&m.ID, &m.ConversationID, &direction, &m.Role, &m.Content, &m.Metadata, &compressed, &m.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("scan message: %w", err)
	}
	m.Direction = Direction(direction)
	m.Compressed = compressed != 0
	if m.Compressed {
		plain, err := decompressContent(m.Content)
		if err != nil {
			return Message{}, fmt.Errorf("decompress message %s: %w", m.ID, err)
		}
		m.Content = plain
	}
	return m, nil
}

// CompressOldMessages replaces the content of uncompressed messages
// older than olderThanDays with a gzip+base64 form, marking
// compressed=1. Reads decompress transparently via scanMessage.
func (s *Store) CompressOldMessages(olderThanDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	rows, err := s.db.Query(`
		SELECT id, content FROM messages
		WHERE compressed = 0 AND created_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("select messages to compress: %w", err)
	}

	type pending struct{ id, content string }
	var batch []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.content); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan message to compress: %w", err)
		}
		batch = append(batch, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	count := 0
	for _, p := range batch {
		encoded, err := compressContent(p.content)
		if err != nil {
			return count, fmt.Errorf("compress message %s: %w", p.id, err)
		}
		if _, err := s.db.Exec(`UPDATE messages SET content = ?, compressed = 1 WHERE id = ?`, encoded, p.id); err != nil {
			return count, fmt.Errorf("persist compressed message %s: %w", p.id, err)
		}
		count++
	}
	return count, nil
}

func compressContent(plain string) (string, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(plain)); err != nil {
		return "", err
	}
	if err := gw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decompressContent(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	defer gr.Close()
	plain, err := io.ReadAll(gr)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
