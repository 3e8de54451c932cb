package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// LoadAuthorities reads the authority list. Two shapes are accepted: a JSON
// array of hex addresses, or the console script form
//
//	var authorities = ["0x...", "0x..."];
func LoadAuthorities(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read authorities: %w", err)
	}
	data = bytes.TrimSpace(data)
	if !bytes.HasPrefix(data, []byte("[")) {
		start := bytes.IndexByte(data, '[')
		end := bytes.LastIndexByte(data, ']')
		if start < 0 || end < start {
			return nil, fmt.Errorf("failed to parse authorities %s: no list found", path)
		}
		data = data[start : end+1]
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse authorities %s: %w", path, err)
	}
	return list, nil
}

// AuthorityList resolves the configured list: the file if set, else the inline list.
func (c *Config) AuthorityList() ([]string, error) {
	if c.Authority.File != "" {
		if _, err := os.Stat(c.Authority.File); err == nil || len(c.Authority.List) == 0 {
			return LoadAuthorities(c.Authority.File)
		}
	}
	return c.Authority.List, nil
}
