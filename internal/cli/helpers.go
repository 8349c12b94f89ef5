package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/tabshelf/internal/app"
	"github.com/mesh-intelligence/tabshelf/internal/logging"
)

// withApp opens the application for one command and closes it afterwards.
// Errors returned by fn are tagged with an exit code.
func (s *state) withApp(ctx context.Context, fn func(*app.App) error) error {
	st, err := s.settings()
	if err != nil {
		return failSys(err)
	}
	logger, closer, err := logging.New(s.stderr, st.Log)
	if err != nil {
		return failUser(err)
	}
	defer closer.Close()

	a, err := app.Open(ctx, app.Options{
		Storage:       st.Storage,
		Remote:        st.Remote,
		CacheTTL:      st.CacheTTL,
		RetryAttempts: st.RetryAttempts,
		Logger:        logger,
	})
	if err != nil {
		return failSys(err)
	}
	runErr := fn(a)
	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return fail(runErr)
}

// emit writes v as JSON under --json. Otherwise text renders it, or YAML
// is written when text is nil.
func (s *state) emit(v any, text func(w io.Writer)) error {
	if s.jsonMode {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		fmt.Fprintln(s.stdout, string(out))
		return nil
	}
	if text != nil {
		text(s.stdout)
		return nil
	}
	return writeYAML(s.stdout, v)
}

// writeYAML renders v through its JSON form so field names match the
// stored documents.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("marshal YAML: %w", err)
	}
	return enc.Close()
}

// readPayload resolves a payload argument: "-" reads stdin, "@path" reads
// a file, anything else is the payload itself.
func (s *state) readPayload(arg string) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(s.stdin)
	case strings.HasPrefix(arg, "@"):
		return os.ReadFile(strings.TrimPrefix(arg, "@"))
	default:
		return []byte(arg), nil
	}
}
