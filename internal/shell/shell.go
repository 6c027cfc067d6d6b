// Package shell is the interactive SQL client: it logs in over HTTP,
// reads statements terminated by ';', and prints result rows
// pipe-delimited.
package shell

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/peterh/liner"
)

type queryResponse struct {
	Rows [][]string `json:"rows"`
}

// Shell is one interactive session against a pagedb server.
type Shell struct {
	baseURL string
	client  *http.Client
	line    *liner.State
}

// New creates a shell against baseURL (e.g. http://127.0.0.1:8080).
func New(baseURL string) (*Shell, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Shell{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Jar: jar},
	}, nil
}

// Run prompts for credentials, logs in, and enters the statement loop.
// It returns on 'exit', EOF, or interrupt.
func (s *Shell) Run() error {
	s.line = liner.NewLiner()
	defer s.line.Close()
	s.line.SetCtrlCAborts(true)

	user, err := s.line.Prompt("user: ")
	if err != nil {
		return nil
	}
	pass, err := s.line.PasswordPrompt("pass: ")
	if err != nil {
		return nil
	}
	if err := s.login(user, pass); err != nil {
		return err
	}
	fmt.Println("connected to", s.baseURL)

	var buf strings.Builder
	for {
		prompt := "pagedb> "
		if buf.Len() > 0 {
			prompt = "   ...> "
		}

		input, err := s.line.Prompt(prompt)
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(input)
		if buf.Len() == 0 && strings.EqualFold(trimmed, "exit") {
			return nil
		}
		if trimmed == "" {
			continue
		}

		buf.WriteString(input)
		buf.WriteString("\n")
		if !strings.HasSuffix(trimmed, ";") {
			continue
		}

		stmt := buf.String()
		buf.Reset()
		s.line.AppendHistory(strings.TrimSpace(stmt))

		rows, err := s.query(stmt)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		for _, row := range rows {
			fmt.Println(strings.Join(row, " | "))
		}
		fmt.Printf("(%d rows)\n", len(rows))
	}
}

func (s *Shell) login(user, pass string) error {
	body, _ := json.Marshal(map[string]string{"user": user, "pass": pass})
	resp, err := s.client.Post(s.baseURL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login rejected (%s)", resp.Status)
	}
	return nil
}

func (s *Shell) query(stmt string) ([][]string, error) {
	body, _ := json.Marshal(map[string]string{"sql": stmt})
	resp, err := s.client.Post(s.baseURL+"/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s", strings.TrimSpace(string(msg)))
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, err
	}
	return qr.Rows, nil
}
