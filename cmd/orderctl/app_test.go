package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/rickgao/basemap-orders/internal/api"
	"github.com/rickgao/basemap-orders/internal/ledger"
	"github.com/rickgao/basemap-orders/internal/model"
	"github.com/rickgao/basemap-orders/internal/poller"
)

const sampleSpec = `{
  "name": "ca-quads",
  "source_type": "basemaps",
  "products": [{"mosaic_name": "global_monthly_2022_01_mosaic", "quad_ids": ["1229-1000"]}],
  "tools": [{"merge": {}}, {"clip": {}}],
  "delivery": {"archive_type": "zip", "single_archive": true}
}`

func TestReadSpec(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "order.json")
		if err := os.WriteFile(path, []byte(sampleSpec), 0o644); err != nil {
			t.Fatal(err)
		}

		spec, err := readSpec(path, nil)
		if err != nil {
			t.Fatalf("readSpec: %v", err)
		}
		if spec.Name != "ca-quads" || len(spec.Tools) != 2 || !spec.Delivery.SingleArchive {
			t.Errorf("spec = %+v", spec)
		}
		if err := spec.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("stdin", func(t *testing.T) {
		spec, err := readSpec("-", strings.NewReader(sampleSpec))
		if err != nil {
			t.Fatalf("readSpec: %v", err)
		}
		if spec.Products[0].QuadIDs[0] != "1229-1000" {
			t.Errorf("quad ids = %v", spec.Products[0].QuadIDs)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := readSpec("-", strings.NewReader(`{"name": "x", "bogus": 1}`))
		if err == nil {
			t.Fatal("expected error for unknown field")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := readSpec(filepath.Join(t.TempDir(), "nope.json"), nil); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"generic", errors.New("boom"), 1},
		{"failed order", &orderFailedError{orderID: "a", state: model.StateFailed}, 3},
		{"timeout", &poller.TimeoutError{Attempts: 3}, 4},
		{"transport", fmt.Errorf("wrapped: %w", &poller.TransportError{Err: errors.New("eof")}), 5},
		{"submission", &poller.SubmissionError{Err: errors.New("400")}, 6},
		{"invalid spec", fmt.Errorf("%w: name is required", model.ErrInvalidSpec), 6},
		{"cancelled", context.Canceled, 130},
		{"joined", errors.Join(errors.New("x"), &orderFailedError{orderID: "b", state: model.StateCancelled}), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestRunVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := runVersion(context.Background(), nil, &buf); err != nil {
		t.Fatalf("runVersion: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "orderctl ") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestCommandsRequireFlags(t *testing.T) {
	tests := []struct {
		name string
		cmd  command
		args []string
		want string
	}{
		{"submit", runSubmit, nil, "-spec is required"},
		{"wait", runWait, nil, "-id is required"},
		{"quads", runQuads, []string{"-mosaic", "m"}, "-mosaic and -bbox are required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd(context.Background(), tt.args, &bytes.Buffer{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestAdoptOrder(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/compute/ops/orders/v2/ext-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"id":"ext-1","name":"made-elsewhere","state":"running","_links":{"_self":"%s/compute/ops/orders/v2/ext-1"}}`, server.URL)
	}))
	defer server.Close()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	selfLink := server.URL + "/compute/ops/orders/v2/ext-1"
	mock.ExpectExec("INSERT INTO basemap_orders").
		WithArgs("ext-1", "made-elsewhere", selfLink, "running").
		WillReturnResult(sqlmock.NewResult(0, 1))

	a := &app{
		logger: slog.Default(),
		client: api.NewClient(server.URL, "key", api.WithRetries(0, time.Millisecond)),
		store:  ledger.NewStore(db),
	}

	handle, err := a.adoptOrder(context.Background(), "ext-1")
	if err != nil {
		t.Fatalf("adoptOrder: %v", err)
	}
	if handle.ID != "ext-1" || handle.Location != selfLink {
		t.Errorf("handle = %+v", handle)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}

	if _, err := a.adoptOrder(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown order")
	}
}
