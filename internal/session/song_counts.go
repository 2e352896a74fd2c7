package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SongCounts maps song titles to attempt counts and remembers the order in
// which each song was first attempted. The JSON form is a plain object whose
// keys appear in that order.
type SongCounts struct {
	order  []string
	counts map[string]int
}

// Add increments song's count and returns the new value.
func (c *SongCounts) Add(song string) int {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	if _, seen := c.counts[song]; !seen {
		c.order = append(c.order, song)
	}
	c.counts[song]++
	return c.counts[song]
}

// Count returns the attempts recorded for song.
func (c SongCounts) Count(song string) int {
	return c.counts[song]
}

// Len returns the number of distinct songs.
func (c SongCounts) Len() int {
	return len(c.order)
}

// Songs returns titles in first-attempt order.
func (c SongCounts) Songs() []string {
	return append([]string(nil), c.order...)
}

// Total sums every count.
func (c SongCounts) Total() int {
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Map returns a copy of the counts.
func (c SongCounts) Map() map[string]int {
	out := make(map[string]int, len(c.counts))
	for song, n := range c.counts {
		out[song] = n
	}
	return out
}

// Favorite returns the most attempted song; ties go to the song attempted first.
func (c SongCounts) Favorite() string {
	best, bestCount := "", 0
	for _, song := range c.order {
		if n := c.counts[song]; n > bestCount {
			best, bestCount = song, n
		}
	}
	return best
}

func (c SongCounts) clone() SongCounts {
	return SongCounts{order: c.Songs(), counts: c.Map()}
}

func (c SongCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, song := range c.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(song)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", c.counts[song])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *SongCounts) UnmarshalJSON(data []byte) error {
	*c = SongCounts{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("song counts: expected object, got %v", tok)
	}
	c.counts = make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		song, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("song counts: expected string key, got %v", keyTok)
		}
		var n int
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("song counts: value for %q: %w", song, err)
		}
		if _, seen := c.counts[song]; !seen {
			c.order = append(c.order, song)
		}
		c.counts[song] = n
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
