package storage

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"stealthfetch/internal/shared/logger"
	"stealthfetch/proxypool/model"
)

const (
	delimiter = "|"
	numFields = 10 // host|port|protocol|country|source|success|fail|last_used|cooldown_until|created_at
)

// FileStorage implements Store using a plain text file, one proxy per
// line. Lines are written in snapshot order so rotation resumes where it
// left off after a reload.
type FileStorage struct {
	filePath string
	mu       sync.RWMutex
}

// NewFileStorage creates a new FileStorage instance.
func NewFileStorage(filePath string) *FileStorage {
	return &FileStorage{
		filePath: filePath,
	}
}

// Load reads the snapshot file. A missing file yields an empty list so a
// first run needs no seed file.
func (fs *FileStorage) Load(ctx context.Context) ([]*model.Proxy, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	l := logger.WithComponent("ProxyPool/Storage")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(fs.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			l.Info().Str("path", fs.filePath).Msg("Proxy data file not found, starting with an empty pool.")
			return []*model.Proxy{}, nil
		}
		return nil, err
	}
	defer file.Close()

	proxies := make([]*model.Proxy, 0)
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		fields := strings.Split(line, delimiter)
		if len(fields) != numFields {
			l.Warn().Int("line", lineNum).Int("expected", numFields).Int("got", len(fields)).Msg("Skipping malformed line in proxy file.")
			continue
		}

		p, err := parseProxy(fields)
		if err != nil {
			l.Warn().Int("line", lineNum).Err(err).Msg("Failed to parse proxy from line, skipping.")
			continue
		}
		proxies = append(proxies, p)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	l.Info().Int("count", len(proxies)).Msg("Successfully loaded proxies from file.")
	return proxies, nil
}

// Save writes the snapshot to the file, replacing any previous content.
func (fs *FileStorage) Save(ctx context.Context, proxies []*model.Proxy) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	l := logger.WithComponent("ProxyPool/Storage")

	if err := ctx.Err(); err != nil {
		return err
	}

	var sb strings.Builder
	for _, p := range proxies {
		sb.WriteString(formatProxy(p))
		sb.WriteString("\n")
	}

	if err := os.WriteFile(fs.filePath, []byte(sb.String()), 0644); err != nil {
		return err
	}

	l.Info().Int("count", len(proxies)).Msg("Successfully saved proxies to file.")
	return nil
}

// formatProxy renders one proxy as a delimited line.
func formatProxy(p *model.Proxy) string {
	return strings.Join([]string{
		p.Host,
		strconv.Itoa(p.Port),
		p.Protocol,
		p.Country,
		p.Source,
		strconv.Itoa(p.Success()),
		strconv.Itoa(p.Fail()),
		strconv.FormatInt(unixOrZero(p.LastUsed()), 10),
		strconv.FormatInt(unixOrZero(p.CooldownUntil()), 10),
		strconv.FormatInt(unixOrZero(p.CreatedAt()), 10),
	}, delimiter)
}

// parseProxy rebuilds a proxy from the fields of one line.
func parseProxy(fields []string) (*model.Proxy, error) {
	host := fields[0]
	if host == "" {
		return nil, fmt.Errorf("missing host")
	}

	port, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("port %d out of range", port)
	}

	success, err := strconv.Atoi(fields[5])
	if err != nil {
		return nil, fmt.Errorf("invalid success count: %w", err)
	}

	fail, err := strconv.Atoi(fields[6])
	if err != nil {
		return nil, fmt.Errorf("invalid fail count: %w", err)
	}

	lastUsed, err := parseUnix(fields[7])
	if err != nil {
		return nil, fmt.Errorf("invalid last_used: %w", err)
	}

	cooldownUntil, err := parseUnix(fields[8])
	if err != nil {
		return nil, fmt.Errorf("invalid cooldown_until: %w", err)
	}

	createdAt, err := parseUnix(fields[9])
	if err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}

	return model.Restore(host, port, fields[2], fields[3], fields[4],
		success, fail, lastUsed, cooldownUntil, createdAt), nil
}

// unixOrZero stores the zero time as 0 rather than the huge negative
// number time.Time.Unix would produce.
func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func parseUnix(s string) (time.Time, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if v <= 0 {
		return time.Time{}, nil
	}
	return time.Unix(v, 0), nil
}
