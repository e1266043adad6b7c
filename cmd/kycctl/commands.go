package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"

	"github.com/and161185/kyc-verifier/internal/api"
	"github.com/and161185/kyc-verifier/internal/service"
)

var errUnknownCommand = errors.New("unknown command")

// client is the subset of *api.VerificationClient the commands use.
type client interface {
	Upload(ctx context.Context, in *api.UploadRequest, opts ...grpc.CallOption) (*api.UploadResponse, error)
	VerifySingle(ctx context.Context, in *api.VerifySingleRequest, opts ...grpc.CallOption) (*api.Record, error)
	ListRecords(ctx context.Context, in *api.ListRecordsRequest, opts ...grpc.CallOption) (*api.ListRecordsResponse, error)
	ListBatchRecords(ctx context.Context, in *api.ListBatchRecordsRequest, opts ...grpc.CallOption) (*api.ListRecordsResponse, error)
	ListBatches(ctx context.Context, in *api.ListBatchesRequest, opts ...grpc.CallOption) (*api.ListBatchesResponse, error)
	BatchStats(ctx context.Context, in *api.BatchRequest, opts ...grpc.CallOption) (*api.BatchStatsResponse, error)
	RetryFailed(ctx context.Context, in *api.BatchRequest, opts ...grpc.CallOption) (*api.RetryFailedResponse, error)
	DeleteBatch(ctx context.Context, in *api.BatchRequest, opts ...grpc.CallOption) (*api.DeleteBatchResponse, error)
	GetStats(ctx context.Context, in *api.StatsRequest, opts ...grpc.CallOption) (*api.StatsResponse, error)
	RefreshStats(ctx context.Context, in *api.StatsRequest, opts ...grpc.CallOption) (*api.StatsResponse, error)
	Usage(ctx context.Context, in *api.UsageRequest, opts ...grpc.CallOption) (*api.UsageResponse, error)
}

var _ client = (*api.VerificationClient)(nil)

// run executes one remote subcommand.
func run(ctx context.Context, cl client, cmd string, args []string, out *printer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 50, "page size")
	batch := fs.String("batch", "", "batch id")

	switch cmd {
	case "upload":
		typ := fs.String("type", "pan_kyc", "verification type")
		file := fs.String("file", "", "spreadsheet path")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *file == "" {
			return errors.New("need -file")
		}
		content, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		resp, err := cl.Upload(ctx, &api.UploadRequest{Type: *typ, Filename: filepath.Base(*file), Content: content})
		if err != nil {
			return err
		}
		return out.upload(resp)

	case "verify":
		req := &api.VerifySingleRequest{}
		fs.StringVar(&req.Type, "type", "pan_kyc", "verification type")
		fs.StringVar(&req.TaxID, "pan", "", "tax ID (PAN)")
		fs.StringVar(&req.NationalID, "aadhaar", "", "national ID (Aadhaar)")
		fs.StringVar(&req.Name, "name", "", "name")
		fs.StringVar(&req.GuardianName, "father", "", "father's name")
		fs.StringVar(&req.DateOfBirth, "dob", "", "date of birth")
		if err := fs.Parse(args); err != nil {
			return err
		}
		rec, err := cl.VerifySingle(ctx, req)
		if err != nil {
			return err
		}
		return out.records([]api.Record{*rec}, 1)

	case "records":
		if err := fs.Parse(args); err != nil {
			return err
		}
		resp, err := cl.ListRecords(ctx, &api.ListRecordsRequest{Page: api.Page{Page: *page, Limit: *limit}})
		if err != nil {
			return err
		}
		return out.records(resp.Records, resp.Total)

	case "batches":
		if err := fs.Parse(args); err != nil {
			return err
		}
		resp, err := cl.ListBatches(ctx, &api.ListBatchesRequest{Page: api.Page{Page: *page, Limit: *limit}})
		if err != nil {
			return err
		}
		return out.batches(resp)

	case "batch-records":
		st := fs.String("status", "all", "status filter")
		if err := parseWithBatch(fs, args, batch); err != nil {
			return err
		}
		resp, err := cl.ListBatchRecords(ctx, &api.ListBatchRecordsRequest{
			BatchID: *batch,
			Status:  *st,
			Page:    api.Page{Page: *page, Limit: *limit},
		})
		if err != nil {
			return err
		}
		return out.records(resp.Records, resp.Total)

	case "batch-stats":
		if err := parseWithBatch(fs, args, batch); err != nil {
			return err
		}
		resp, err := cl.BatchStats(ctx, &api.BatchRequest{BatchID: *batch})
		if err != nil {
			return err
		}
		return out.batchStats(resp)

	case "retry":
		if err := parseWithBatch(fs, args, batch); err != nil {
			return err
		}
		resp, err := cl.RetryFailed(ctx, &api.BatchRequest{BatchID: *batch})
		if err != nil {
			return err
		}
		return out.line(resp, "requeued %d failed records\n", resp.Requeued)

	case "rm-batch":
		if err := parseWithBatch(fs, args, batch); err != nil {
			return err
		}
		resp, err := cl.DeleteBatch(ctx, &api.BatchRequest{BatchID: *batch})
		if err != nil {
			return err
		}
		return out.line(resp, "deleted batch %s\n", *batch)

	case "stats":
		refresh := fs.Bool("refresh", false, "recompute instead of serving the cache")
		if err := fs.Parse(args); err != nil {
			return err
		}
		get := cl.GetStats
		if *refresh {
			get = cl.RefreshStats
		}
		resp, err := get(ctx, &api.StatsRequest{})
		if err != nil {
			return err
		}
		return out.stats(resp)

	case "usage":
		resp, err := cl.Usage(ctx, &api.UsageRequest{})
		if err != nil {
			return err
		}
		return out.usage(resp)
	}
	return fmt.Errorf("%w %q", errUnknownCommand, cmd)
}

func parseWithBatch(fs *flag.FlagSet, args []string, batch *string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *batch == "" {
		return errors.New("need -batch")
	}
	return nil
}

// issueToken signs an owner token with the server's key and stores it locally.
func issueToken(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	owner := fs.String("owner", "", "owner uuid, random when empty")
	key := fs.String("jwt-key", os.Getenv("KYC_JWT_KEY"), "HS256 signing key")
	ttl := fs.Duration("ttl", time.Hour, "token TTL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		return errors.New("need -jwt-key or KYC_JWT_KEY")
	}
	id := uuid.Nil
	if *owner == "" {
		id = uuid.Must(uuid.NewV4())
	} else {
		var err error
		if id, err = uuid.FromString(*owner); err != nil {
			return fmt.Errorf("bad -owner: %w", err)
		}
	}
	tok, exp, err := service.NewTokenService([]byte(*key), *ttl).Issue(id)
	if err != nil {
		return err
	}
	if err := saveToken(tok, exp); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "owner %s, token valid until %s\n", id, exp.Format(time.RFC3339))
	return err
}

// ---- output ----

type printer struct {
	w    io.Writer
	json bool
}

func (p *printer) raw(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) line(v any, format string, args ...any) error {
	if p.json {
		return p.raw(v)
	}
	_, err := fmt.Fprintf(p.w, format, args...)
	return err
}

func (p *printer) upload(r *api.UploadResponse) error {
	if p.json {
		return p.raw(r)
	}
	fmt.Fprintf(p.w, "batch %s: %d rows, %d accepted, %d rejected\n", r.BatchID, r.TotalRows, len(r.Accepted), len(r.Rejections))
	if len(r.Rejections) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tFIELD\tREASON")
	for _, rj := range r.Rejections {
		field := rj.Field
		if field == "" {
			field = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", rj.Row, field, rj.Reason)
	}
	return tw.Flush()
}

func (p *printer) records(rs []api.Record, total int) error {
	if p.json {
		return p.raw(api.ListRecordsResponse{Records: rs, Total: total})
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tROW\tTAX_ID\tSTATUS\tRETRIES\tREASON")
	for _, r := range rs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\t%s\n", r.ID, r.Type, r.Row, r.TaxID, r.Status, r.RetryCount, r.FailureReason)
	}
	fmt.Fprintf(tw, "\t\t\t\t\t\t%d of %d\n", len(rs), total)
	return tw.Flush()
}

func (p *printer) batches(r *api.ListBatchesResponse) error {
	if p.json {
		return p.raw(r)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tFILE\tSTATUS\tTOTAL\tVERIFIED\tFAILED\tPENDING")
	for _, b := range r.Batches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			b.ID, b.Type, b.Filename, b.Status, b.TotalRecords, b.VerifiedCount, b.FailedCount, b.PendingCount)
	}
	return tw.Flush()
}

func (p *printer) batchStats(r *api.BatchStatsResponse) error {
	if p.json {
		return p.raw(r)
	}
	fmt.Fprintf(p.w, "batch %s (%s, %s): %s\n", r.Batch.ID, r.Batch.Filename, r.Batch.Type, r.Batch.Status)
	return p.counts(map[string]api.Counts{"records": r.Counts}, nil)
}

func (p *printer) stats(r *api.StatsResponse) error {
	if p.json {
		return p.raw(r)
	}
	fmt.Fprintf(p.w, "computed at %s\n", r.ComputedAt.Format(time.RFC3339))
	return p.counts(r.ByType, &r.Totals)
}

func (p *printer) counts(rows map[string]api.Counts, totals *api.Counts) error {
	names := make([]string, 0, len(rows))
	for k := range rows {
		names = append(names, k)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tPENDING\tPROCESSING\tVERIFIED\tFAILED\tTOTAL")
	write := func(name string, c api.Counts) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", name, c.Pending, c.Processing, c.Verified, c.Failed, c.Total)
	}
	for _, n := range names {
		write(n, rows[n])
	}
	if totals != nil {
		write("total", *totals)
	}
	return tw.Flush()
}

func (p *printer) usage(r *api.UsageResponse) error {
	if p.json {
		return p.raw(r)
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tCALLS\tUPDATED")
	for _, u := range r.Usage {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", u.Provider, u.Calls, u.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
