package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/askflow-backend/internal/app"
	"github.com/yungbote/askflow-backend/internal/pkg/dbctx"
)

// requeue_terminal lists rows that exhausted their retries and, unless -dry-run, gives
// them a fresh retry budget so the next stage pass picks them up again.
func main() {
	var (
		table     string
		workspace string
		limit     int
		dryRun    bool
	)
	flag.StringVar(&table, "table", "events", "events or facts")
	flag.StringVar(&workspace, "workspace", "", "restrict to one workspace_id")
	flag.IntVar(&limit, "limit", 100, "maximum rows to requeue")
	flag.BoolVar(&dryRun, "dry-run", false, "print terminal rows without requeueing")
	flag.Parse()

	where, args := "", []any{}
	if ws := strings.TrimSpace(workspace); ws != "" {
		id, err := uuid.Parse(ws)
		if err != nil {
			fmt.Printf("invalid -workspace: %v\n", err)
			os.Exit(2)
		}
		where, args = "workspace_id = ?", []any{id}
	}

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	defer application.Close(ctx)
	dbc := dbctx.Context{Ctx: ctx}

	var ids []uuid.UUID
	switch table {
	case "events":
		rows, err := application.Repos.EventLocks.Terminal(dbc, where, args, limit)
		if err != nil {
			fmt.Printf("list terminal events: %v\n", err)
			os.Exit(1)
		}
		for _, r := range rows {
			fmt.Printf("event %s stage=%s retries=%d last_error=%q\n", r.ID, r.ProcessingStage, r.RetryCount, r.LastError)
			ids = append(ids, r.ID)
		}
	case "facts":
		rows, err := application.Repos.FactLocks.Terminal(dbc, where, args, limit)
		if err != nil {
			fmt.Printf("list terminal facts: %v\n", err)
			os.Exit(1)
		}
		for _, r := range rows {
			fmt.Printf("fact %s status=%s retries=%d last_error=%q\n", r.ID, r.AggregationStatus, r.RetryCount, r.LastError)
			ids = append(ids, r.ID)
		}
	default:
		fmt.Printf("unknown -table %q (want events or facts)\n", table)
		os.Exit(2)
	}

	if dryRun || len(ids) == 0 {
		fmt.Printf("done; terminal=%d requeued=0\n", len(ids))
		return
	}

	var n int64
	if table == "events" {
		n, err = application.Repos.EventLocks.Requeue(dbc, ids)
	} else {
		n, err = application.Repos.FactLocks.Requeue(dbc, ids)
	}
	if err != nil {
		fmt.Printf("requeue: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("done; terminal=%d requeued=%d\n", len(ids), n)
}
