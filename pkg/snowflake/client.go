package snowflake

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/conductorone/baton-sdk/pkg/uhttp"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	AuthTypeHeaderKey   = "X-Snowflake-Authorization-Token-Type"
	AuthTypeHeaderValue = "KEYPAIR_JWT"

	RowTypeString = "text"

	BindingTypeText = "TEXT"

	// CodeStatementInProgress is returned with HTTP 202 while a statement is still running.
	CodeStatementInProgress = "333334"

	defaultPollInterval = time.Second
)

type (
	Client struct {
		uhttp.BaseHttpClient
		JWTConfig

		AccountUrl       string
		StatementsApiUrl *url.URL
		Warehouse        string
		Database         string
		Role             string
		PollInterval     time.Duration
	}
	PartitionInfo struct {
		RowCount         int `json:"rowCount"`
		UncompressedSize int `json:"uncompressedSize"`
	}
	ResultSetMetadata struct {
		NumRows       int             `json:"numRows"`
		RowTypes      []RowType       `json:"rowType"`
		PartitionInfo []PartitionInfo `json:"partitionInfo"`
	}
	StatementsApiResponseBase struct {
		ResultSetMetadata ResultSetMetadata `json:"resultSetMetadata"`
		Code              string            `json:"code"`
		StatementHandle   string            `json:"statementHandle"`
		Message           string            `json:"message"`
		Data              [][]string        `json:"data"`
	}
	StatementsApiRequestBody struct {
		Statement string                    `json:"statement"`
		Bindings  map[string]QueryParameter `json:"bindings,omitempty"`
		Warehouse string                    `json:"warehouse,omitempty"`
		Database  string                    `json:"database,omitempty"`
		Role      string                    `json:"role,omitempty"`
	}
	QueryParameter struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}
	RowType struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	Parsable interface {
		GetColumnName(fieldName string) string
	}
)

// SnowflakeError is the error body returned by the SQL API.
type SnowflakeError struct {
	Code   string `json:"code"`
	ErrMsg string `json:"message"`
}

func (e *SnowflakeError) Message() string {
	if e.ErrMsg != "" {
		return e.ErrMsg
	}
	if e.Code != "" {
		return e.Code
	}
	return "unknown error"
}

// statementErrorCode maps SQL API error codes to gRPC codes.
// 003001: insufficient privileges. 002003: object does not exist or not authorized.
func statementErrorCode(code string) codes.Code {
	switch code {
	case "003001", "002003":
		return codes.PermissionDenied
	default:
		return codes.InvalidArgument
	}
}

func TextParameter(value string) QueryParameter {
	return QueryParameter{Type: BindingTypeText, Value: value}
}

// FindRowTypeByName matches column names case-insensitively; unquoted identifiers
// come back uppercased.
func (m *ResultSetMetadata) FindRowTypeByName(name string) (bool, int, *RowType) {
	for i, rowType := range m.RowTypes {
		if strings.EqualFold(rowType.Name, name) {
			return true, i, &rowType
		}
	}

	return false, -1, nil
}

func (m *ResultSetMetadata) GetStringValueFromRow(row []string, key string) (string, error) {
	found, i, rowType := m.FindRowTypeByName(key)
	if !found {
		return "", fmt.Errorf("row type %s not found", key)
	}

	if !strings.EqualFold(rowType.Type, RowTypeString) {
		return "", fmt.Errorf("column %s is not a string", key)
	}

	if i >= len(row) {
		return "", fmt.Errorf("row has %d columns, column %s is at %d", len(row), key, i)
	}

	return row[i], nil
}

func (m *ResultSetMetadata) ParseRow(s Parsable, row []string) error {
	reflected := reflect.ValueOf(s).Elem()

	if reflected.Kind() != reflect.Struct {
		return fmt.Errorf("expected struct, got %s", reflected.Kind())
	}

	for i := 0; i < reflected.NumField(); i++ {
		field := reflected.Type().Field(i)
		columnName := s.GetColumnName(field.Name)

		switch field.Type.Kind() {
		case reflect.String:
			value, err := m.GetStringValueFromRow(row, columnName)
			if err != nil {
				return err
			}

			reflected.Field(i).SetString(value)
		default:
			return fmt.Errorf("unsupported type %s", field.Type.Kind())
		}
	}

	return nil
}

func createStatementsApiUrl(accountUrl string) (*url.URL, error) {
	stringUrl, err := url.JoinPath(accountUrl, "api/v2/statements")
	if err != nil {
		return nil, err
	}

	return url.Parse(stringUrl)
}

func New(accountUrl string, jwtConfig JWTConfig, httpClient *http.Client) (*Client, error) {
	statementsApiUrl, err := createStatementsApiUrl(accountUrl)
	if err != nil {
		return nil, err
	}

	return &Client{
		BaseHttpClient:   *uhttp.NewBaseHttpClient(httpClient),
		JWTConfig:        jwtConfig,
		AccountUrl:       accountUrl,
		StatementsApiUrl: statementsApiUrl,
		PollInterval:     defaultPollInterval,
	}, nil
}

// WithSession sets the context every statement runs in. An empty role is
// omitted so Snowflake applies the user's default role.
func (c *Client) WithSession(warehouse, database, role string) *Client {
	c.Warehouse = warehouse
	c.Database = database
	c.Role = role
	return c
}

func (c *Client) PostStatementRequest(ctx context.Context, statement string, bindings []QueryParameter) (*http.Request, error) {
	body := &StatementsApiRequestBody{
		Statement: statement,
		Warehouse: c.Warehouse,
		Database:  c.Database,
		Role:      c.Role,
	}
	if len(bindings) > 0 {
		body.Bindings = make(map[string]QueryParameter, len(bindings))
		for i, b := range bindings {
			body.Bindings[strconv.Itoa(i+1)] = b
		}
	}

	return c.NewRequest(
		ctx,
		http.MethodPost,
		c.StatementsApiUrl,
		uhttp.WithJSONBody(body),
		uhttp.WithAcceptJSONHeader(),
		uhttp.WithContentTypeJSONHeader(),
		uhttp.WithHeader(AuthTypeHeaderKey, AuthTypeHeaderValue),
	)
}

func (c *Client) GetStatementResponse(ctx context.Context, statementHandle string, partition int) (*http.Request, error) {
	stringUrl, err := url.JoinPath(c.StatementsApiUrl.String(), statementHandle)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(stringUrl)
	if err != nil {
		return nil, err
	}

	if partition > 0 {
		q := u.Query()
		q.Set("partition", strconv.Itoa(partition))
		u.RawQuery = q.Encode()
	}

	return c.NewRequest(
		ctx,
		http.MethodGet,
		u,
		uhttp.WithAcceptJSONHeader(),
		uhttp.WithHeader(AuthTypeHeaderKey, AuthTypeHeaderValue),
	)
}

// isUnprocessableEntity reports whether the SQL API answered HTTP 422, which it
// uses for statements that failed to compile or execute.
func isUnprocessableEntity(resp *http.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
		return true
	}
	return err != nil && (strings.Contains(err.Error(), "422") || strings.Contains(err.Error(), "Unprocessable Entity"))
}

// statementInProgress reports whether response is a status-only body for a
// statement that has not finished yet.
func statementInProgress(statusCode int, response *StatementsApiResponseBase) bool {
	return statusCode == http.StatusAccepted || response.Code == CodeStatementInProgress
}

// do sends req, decodes the body into target and returns the HTTP status code.
func (c *Client) do(req *http.Request, target *StatementsApiResponseBase) (int, error) {
	var errorResponse SnowflakeError
	resp, err := c.Do(req, uhttp.WithJSONResponse(target), uhttp.WithErrorResponse(&errorResponse))
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if isUnprocessableEntity(resp, err) {
			return http.StatusUnprocessableEntity, status.Errorf(statementErrorCode(errorResponse.Code), "snowflake: statement failed: %s", errorResponse.Message())
		}
		return 0, err
	}
	if resp == nil {
		return 0, fmt.Errorf("snowflake: empty response")
	}
	return resp.StatusCode, nil
}

// ExecuteStatement submits a statement and reads its first result partition.
// While Snowflake reports the statement as running, the result is polled every
// PollInterval until it completes, fails or ctx is done.
func (c *Client) ExecuteStatement(ctx context.Context, statement string, bindings []QueryParameter, response *StatementsApiResponseBase) error {
	l := ctxzap.Extract(ctx)

	req, err := c.PostStatementRequest(ctx, statement, bindings)
	if err != nil {
		return err
	}
	if _, err := c.do(req, response); err != nil {
		return err
	}

	handle := response.StatementHandle
	if handle == "" {
		return fmt.Errorf("snowflake: no statement handle in response (code %s): %s", response.Code, response.Message)
	}

	l.Debug("statement submitted",
		zap.String("response.code", response.Code),
		zap.String("response.message", response.Message),
		zap.String("statement_handle", handle),
	)

	for {
		req, err = c.GetStatementResponse(ctx, handle, 0)
		if err != nil {
			return err
		}
		statusCode, err := c.do(req, response)
		if err != nil {
			return err
		}
		if !statementInProgress(statusCode, response) {
			return nil
		}

		l.Debug("statement still running", zap.String("statement_handle", handle), zap.Duration("poll_interval", c.PollInterval))

		select {
		case <-ctx.Done():
			return fmt.Errorf("snowflake: waiting for statement %s: %w", handle, ctx.Err())
		case <-time.After(c.PollInterval):
		}
	}
}

func (c *Client) GetStatementPartition(ctx context.Context, statementHandle string, partition int, response *StatementsApiResponseBase) error {
	req, err := c.GetStatementResponse(ctx, statementHandle, partition)
	if err != nil {
		return err
	}
	_, err = c.do(req, response)
	return err
}

// Close is a no-op; the SQL API holds no server-side session.
func (c *Client) Close() error {
	return nil
}
