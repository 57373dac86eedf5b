package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/basemap-orders/internal/api"
	"github.com/rickgao/basemap-orders/internal/ledger"
	"github.com/rickgao/basemap-orders/internal/model"
	"github.com/rickgao/basemap-orders/internal/poller"
	"github.com/rickgao/basemap-orders/internal/progress"
)

// maxConcurrentPolls bounds how many orders resume polls at once.
const maxConcurrentPolls = 4

func runSubmit(ctx context.Context, args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("submit")
	specPath := fs.String("spec", "", "order spec JSON file (- reads stdin)")
	wait := fs.Bool("wait", false, "poll the order until it finishes")
	fetch := fs.Bool("fetch", false, "download delivered artifacts (implies -wait)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *specPath == "" {
		return errors.New("-spec is required")
	}
	*wait = *wait || *fetch

	spec, err := readSpec(*specPath, os.Stdin)
	if err != nil {
		return err
	}
	if spec.Name == "" {
		spec.Name = "basemap-order-" + uuid.NewString()[:8]
	}
	if spec.SourceType == "" {
		spec.SourceType = model.SourceTypeBasemaps
	}

	a, err := newApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	if *wait {
		err = a.withPolling(ctx, *fetch)
	} else {
		err = a.withLedger(ctx)
	}
	if err != nil {
		return err
	}

	obs, flush := a.observer()
	p := poller.New(a.pollerConfig(), a.client, obs, a.logger)

	handle, err := p.SubmitOrder(ctx, spec)
	if err != nil {
		flush()
		return err
	}

	if a.store != nil {
		if _, err := a.store.RecordSubmission(ctx, handle, spec); err != nil {
			a.logger.Warn("failed to record submission", "order_id", handle.ID, "error", err)
		}
	}

	if !*wait {
		flush()
		return writeJSON(stdout, handle)
	}

	return a.await(ctx, p, flush, []model.OrderHandle{handle}, stdout)
}

func runWait(ctx context.Context, args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("wait")
	id := fs.String("id", "", "order id")
	fetch := fs.Bool("fetch", false, "download delivered artifacts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("-id is required")
	}

	a, err := newApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.withPolling(ctx, *fetch); err != nil {
		return err
	}

	handle := model.OrderHandle{ID: *id}
	if a.store != nil {
		rec, err := a.store.Get(ctx, *id)
		switch {
		case err == nil:
			handle = rec.Handle
		case errors.Is(err, ledger.ErrNotFound):
			if handle, err = a.adoptOrder(ctx, *id); err != nil {
				return err
			}
		default:
			return err
		}
	}

	obs, flush := a.observer()
	p := poller.New(a.pollerConfig(), a.client, obs, a.logger)
	return a.await(ctx, p, flush, []model.OrderHandle{handle}, stdout)
}

func runResume(ctx context.Context, args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("resume")
	fetch := fs.Bool("fetch", false, "download delivered artifacts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.Database.Enabled() {
		return errors.New("resume requires a ledger database (database.host)")
	}
	if err := a.withPolling(ctx, *fetch); err != nil {
		return err
	}

	handles, err := a.store.Pending(ctx)
	if err != nil {
		return err
	}
	if len(handles) == 0 {
		a.logger.Info("no unfinished orders in ledger")
		return nil
	}
	a.logger.Info("resuming unfinished orders", "count", len(handles))

	obs, flush := a.observer()
	p := poller.New(a.pollerConfig(), a.client, obs, a.logger)
	return a.await(ctx, p, flush, handles, stdout)
}

// adoptOrder looks up an order orderctl did not submit and records it in the
// ledger, so progress and outcome writes have a row to attach to.
func (a *app) adoptOrder(ctx context.Context, id string) (model.OrderHandle, error) {
	order, err := a.client.GetOrder(ctx, id)
	if err != nil {
		return model.OrderHandle{}, err
	}

	handle := order.Handle()
	if _, err := a.store.RecordExternal(ctx, handle, order.Name, model.OrderState(order.State)); err != nil {
		return model.OrderHandle{}, err
	}
	a.logger.Info("adopted order into ledger", "order_id", handle.ID, "state", order.State)
	return handle, nil
}

// await polls every handle to completion while serving live progress.
func (a *app) await(ctx context.Context, p *poller.Poller, flush func(), handles []model.OrderHandle, stdout io.Writer) error {
	srvCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	g, gctx := errgroup.WithContext(srvCtx)
	g.Go(func() error {
		return a.serveProgress(gctx)
	})
	g.Go(func() error {
		defer stopServer()
		defer flush()
		return a.pollAll(gctx, p, handles, stdout)
	})

	return g.Wait()
}

// pollAll polls orders independently; one order failing does not stop the
// others. All failures are joined.
func (a *app) pollAll(ctx context.Context, p *poller.Poller, handles []model.OrderHandle, stdout io.Writer) error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(maxConcurrentPolls)

	for _, h := range handles {
		g.Go(func() error {
			res, err := p.AwaitCompletion(ctx, h, a.pollerConfig())
			if err == nil {
				err = a.finish(ctx, res)
			}
			if err == nil && !res.State.HasResults() {
				err = &orderFailedError{orderID: res.Handle.ID, state: res.State}
			}

			mu.Lock()
			defer mu.Unlock()
			if res != nil {
				if werr := writeJSON(stdout, res); werr != nil && err == nil {
					err = werr
				}
			}
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	g.Wait()

	return errors.Join(errs...)
}

func runOrders(ctx context.Context, args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("orders")
	state := fs.String("state", "", "only list orders in this state")
	pages := fs.Int("pages", 1, "max result pages (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	orders, err := a.client.ListOrders(ctx, api.ListOrdersOptions{State: *state, MaxPages: *pages})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.ID, o.Name, o.State, o.CreatedOn)
	}
	return tw.Flush()
}

func runQuads(ctx context.Context, args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("quads")
	mosaic := fs.String("mosaic", "", "mosaic name")
	bbox := fs.String("bbox", "", "xmin,ymin,xmax,ymax in WGS84")
	limit := fs.Int("limit", 0, "max quads (0 = all)")
	product := fs.Bool("product", false, "print an order product for the quads instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *mosaic == "" || *bbox == "" {
		return errors.New("-mosaic and -bbox are required")
	}

	box, err := api.ParseBBox(*bbox)
	if err != nil {
		return err
	}

	a, err := newApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := api.ListQuadsOptions{BBox: box, Limit: *limit}
	if *product {
		prod, err := a.client.QuadProduct(ctx, *mosaic, opts)
		if err != nil {
			return err
		}
		return writeJSON(stdout, prod)
	}

	m, err := a.client.GetMosaicByName(ctx, *mosaic)
	if err != nil {
		return err
	}
	quads, err := a.client.ListQuads(ctx, m.ID, opts)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUAD\tBBOX\tCOVERED")
	for _, q := range quads {
		fmt.Fprintf(tw, "%s\t%v\t%.0f%%\n", q.ID, q.BBox, q.PercentCovered)
	}
	return tw.Flush()
}

func runFeeds(ctx context.Context, args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("feeds")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	feeds, err := a.client.ListFeeds(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE")
	for _, f := range feeds {
		fmt.Fprintf(tw, "%s\t%s\n", f.ID, f.Title)
	}
	return tw.Flush()
}

func runSubscriptions(ctx context.Context, args []string, stdout io.Writer) error {
	fs, cf := newFlagSet("subscriptions")
	feedID := fs.String("feed", "", "only list subscriptions of this feed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(cf)
	if err != nil {
		return err
	}
	defer a.Close()

	subs, err := a.client.ListSubscriptions(ctx, *feedID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFEED\tTITLE\tSTART\tEND")
	for _, s := range subs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.FeedID, s.Title, s.StartTime, s.EndTime)
	}
	return tw.Flush()
}

// runWatch follows the progress endpoint of another orderctl process.
func runWatch(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	url := fs.String("url", "ws://localhost:8090"+progress.DefaultPath, "progress endpoint")
	order := fs.String("id", "", "only show this order")
	if err := fs.Parse(args); err != nil {
		return err
	}

	w := progress.NewWatcher(progress.WatcherConfig{URL: *url}, slog.Default())
	if err := w.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", *url, err)
	}
	defer w.Close()

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.Errors():
			return err
		case p, ok := <-w.Updates():
			if !ok {
				return nil
			}
			if *order != "" && p.OrderID != *order {
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t#%d\t%s\n",
				p.ObservedAt.Format(time.RFC3339), p.OrderID, p.Attempt, p.State)
			tw.Flush()
		}
	}
}
