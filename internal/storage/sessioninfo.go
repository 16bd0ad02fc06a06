package storage

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/kaptinlin/jsonschema"

	molyerrors "github.com/valter-silva-au/moly-recorder/internal/errors"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

//go:embed schema/session_info.schema.json
var sessionInfoSchemaJSON []byte

var (
	sessionInfoSchemaOnce sync.Once
	sessionInfoSchema     *jsonschema.Schema
	sessionInfoSchemaErr  error
)

func compiledSessionInfoSchema() (*jsonschema.Schema, error) {
	sessionInfoSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		sessionInfoSchema, sessionInfoSchemaErr = compiler.Compile(sessionInfoSchemaJSON)
		if sessionInfoSchemaErr != nil {
			sessionInfoSchemaErr = fmt.Errorf("compile session info schema: %w", sessionInfoSchemaErr)
		}
	})
	return sessionInfoSchema, sessionInfoSchemaErr
}

// ValidateSessionInfo checks raw SessionInfo JSON against the embedded
// schema. Any violation is a FormatError.
func ValidateSessionInfo(path string, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return molyerrors.Format("validate session info", path, fmt.Errorf("file is empty"))
	}
	schema, err := compiledSessionInfoSchema()
	if err != nil {
		return err
	}
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return molyerrors.Format("validate session info", path, fmt.Errorf("schema validation failed: %v", result.Errors))
}

// ReadSessionInfo loads and validates a SessionInfo file. Read failures are
// IOErrors; empty, malformed or schema-violating content is a FormatError.
func ReadSessionInfo(path string) (*models.SessionInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, molyerrors.IO("read session info", path, err)
	}
	if !json.Valid(bytes.TrimSpace(data)) {
		return nil, molyerrors.Format("parse session info", path, fmt.Errorf("not valid JSON"))
	}
	if err := ValidateSessionInfo(path, data); err != nil {
		return nil, err
	}
	var info models.SessionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, molyerrors.Format("parse session info", path, err)
	}
	return &info, nil
}

// WriteSessionInfo atomically replaces the SessionInfo file at path.
func WriteSessionInfo(path string, info *models.SessionInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return molyerrors.Format("encode session info", path, err)
	}
	return replaceFile(path, append(data, '\n'))
}
