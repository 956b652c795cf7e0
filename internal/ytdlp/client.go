package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RunFunc executes the binary and returns its stdout.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

type Client struct {
	Binary      string
	CookiesPath string
	AudioFormat string
	Run         RunFunc
}

func New(binary, cookiesPath, audioFormat string) *Client {
	return &Client{Binary: binary, CookiesPath: cookiesPath, AudioFormat: audioFormat}
}

// Entry is one item of a flat playlist listing.
type Entry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Uploader string  `json:"uploader"`
	Channel  string  `json:"channel"`
	Duration float64 `json:"duration"`
}

// Collection is the JSON document printed by `--flat-playlist -J`. For a
// single video the document is the video itself and Entries is empty.
type Collection struct {
	Type     string  `json:"_type"`
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Uploader string  `json:"uploader"`
	Channel  string  `json:"channel"`
	Duration float64 `json:"duration"`
	Entries  []Entry `json:"entries"`
}

// Items returns the entries of a playlist, or the video itself as a single entry.
func (c *Collection) Items() []Entry {
	if c.Type != "playlist" && len(c.Entries) == 0 && strings.TrimSpace(c.ID) != "" {
		return []Entry{{ID: c.ID, Title: c.Title, Uploader: c.Uploader, Channel: c.Channel, Duration: c.Duration}}
	}
	return c.Entries
}

func ParseCollection(raw []byte) (*Collection, error) {
	var c Collection
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse yt-dlp source JSON: %w", err)
	}
	return &c, nil
}

func (c *Client) binary() string {
	if strings.TrimSpace(c.Binary) == "" {
		return "yt-dlp"
	}
	return c.Binary
}

func (c *Client) run(ctx context.Context, args []string) ([]byte, error) {
	run := c.Run
	if run == nil {
		run = execRun
	}
	return run(ctx, c.binary(), args...)
}

func (c *Client) cookieArgs() ([]string, error) {
	if strings.TrimSpace(c.CookiesPath) == "" {
		return nil, nil
	}
	p, err := resolveCookiesPath(c.CookiesPath)
	if err != nil {
		return nil, err
	}
	return []string{"--cookies", p}, nil
}

// FlatPlaylistArgs builds the argument list for an enumeration call.
func (c *Client) FlatPlaylistArgs(sourceURL string) ([]string, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return nil, fmt.Errorf("source URL is required")
	}
	args := []string{"--flat-playlist", "-J", "--no-warnings"}
	cookies, err := c.cookieArgs()
	if err != nil {
		return nil, err
	}
	args = append(args, cookies...)
	return append(args, sourceURL), nil
}

func (c *Client) FlatPlaylistJSON(ctx context.Context, sourceURL string) ([]byte, error) {
	args, err := c.FlatPlaylistArgs(sourceURL)
	if err != nil {
		return nil, err
	}
	out, err := c.run(ctx, args)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, fmt.Errorf("yt-dlp returned empty output")
	}
	return out, nil
}

// ExtractAudioArgs builds the argument list for an audio download into destDir.
func (c *Client) ExtractAudioArgs(videoURL, destDir string) ([]string, error) {
	if strings.TrimSpace(videoURL) == "" {
		return nil, fmt.Errorf("video URL is required")
	}
	if strings.TrimSpace(destDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	format := strings.TrimSpace(c.AudioFormat)
	if format == "" {
		format = "mp3"
	}
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--restrict-filenames",
		"-x", "--audio-format", format,
		"-P", destDir,
		"-o", "%(id)s.%(ext)s",
		"--print", "after_move:filepath",
	}
	cookies, err := c.cookieArgs()
	if err != nil {
		return nil, err
	}
	args = append(args, cookies...)
	return append(args, videoURL), nil
}

// ExtractAudio downloads videoURL as audio into destDir and returns the
// path of the final file.
func (c *Client) ExtractAudio(ctx context.Context, videoURL, destDir string) (string, error) {
	args, err := c.ExtractAudioArgs(videoURL, destDir)
	if err != nil {
		return "", err
	}
	out, err := c.run(ctx, args)
	if err != nil {
		return "", err
	}
	path := lastLine(out)
	if path == "" {
		return "", fmt.Errorf("yt-dlp did not report an output file")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(destDir, path)
	}
	return path, nil
}

// CheckAvailable reports whether the binary can be found.
func (c *Client) CheckAvailable() (string, error) {
	path, err := exec.LookPath(c.binary())
	if err != nil {
		return "", fmt.Errorf("missing dependency: %s is not installed or not on PATH", c.binary())
	}
	return path, nil
}

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("yt-dlp interrupted: %w", ctxErr)
		}
		return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, tail(strings.TrimSpace(stderr.String()), 500))
	}
	return stdout.Bytes(), nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func resolveCookiesPath(path string) (string, error) {
	p := strings.TrimSpace(path)
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve cookies path %s: %w", p, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("cookies file %s: %w", abs, err)
	}
	return abs, nil
}
