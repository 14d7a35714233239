package graphql

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// DefaultMutation is the note mutation the contact schema exposes.
const DefaultMutation = `mutation createNote($id: ID!, $name: String!, $completed: Boolean!) {
  createNote(id: $id, name: $name, completed: $completed) {
    id
    name
    completed
  }
}`

// signingService is the SigV4 service name of managed GraphQL endpoints.
const signingService = "appsync"

type Config struct {
	URL      string
	Mutation string
	Timeout  time.Duration
}

// Client posts one mutation per call. When credentials are set every request
// is signed with SigV4.
type Client struct {
	cfg    Config
	http   *http.Client
	signer *v4.Signer
	creds  aws.CredentialsProvider
	region string
	clock  func() time.Time
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("graphql url is required")
	}
	if cfg.Mutation == "" {
		cfg.Mutation = DefaultMutation
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		clock: time.Now,
	}, nil
}

// WithSigning enables SigV4 with the credentials of awsCfg.
func (c *Client) WithSigning(awsCfg aws.Config) *Client {
	c.signer = v4.NewSigner()
	c.creds = awsCfg.Credentials
	c.region = awsCfg.Region
	return c
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlError struct {
	Message   string `json:"message"`
	ErrorType string `json:"errorType,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// Error is returned when the endpoint answered with GraphQL errors.
type Error struct {
	Messages []string
}

func (e *Error) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// Mutate runs the configured mutation with variables.
func (c *Client) Mutate(ctx context.Context, variables map[string]any) (json.RawMessage, error) {
	payload, err := json.Marshal(request{Query: c.cfg.Mutation, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.signer != nil {
		if err := c.sign(ctx, req, payload); err != nil {
			return nil, err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graphql request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read graphql response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("graphql endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(out.Errors) > 0 {
		gerr := &Error{}
		for _, e := range out.Errors {
			gerr.Messages = append(gerr.Messages, e.Message)
		}
		return nil, gerr
	}
	return out.Data, nil
}

func (c *Client) sign(ctx context.Context, req *http.Request, payload []byte) error {
	creds, err := c.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieve signing credentials: %w", err)
	}
	sum := sha256.Sum256(payload)
	if err := c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), signingService, c.region, c.clock()); err != nil {
		return fmt.Errorf("sign graphql request: %w", err)
	}
	return nil
}
