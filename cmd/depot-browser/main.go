// Command depot-browser is a read-only (plus create-bucket) web UI over a
// running depot server, driven entirely through the minio-go/v7 S3 client
// rather than talking to depot's internals directly — it only ever
// exercises ListBuckets/ListObjectsV2/CreateBucket the same way any other
// S3 client would. Adapted from the teacher's cmd/silo-ui.
package main

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"depot/internal/ui"
)

type browser struct {
	client *minio.Client
}

func (b *browser) listUIBuckets(ctx context.Context) ([]ui.Bucket, error) {
	buckets, err := b.client.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ui.Bucket, 0, len(buckets))
	for _, bkt := range buckets {
		out = append(out, ui.Bucket{
			Name:         bkt.Name,
			CreationDate: bkt.CreationDate.UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

func (b *browser) home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	buckets, err := b.listUIBuckets(ctx)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list buckets: %v", err), http.StatusInternalServerError)
		return
	}
	if err := ui.BucketsPage(buckets).Render(ctx, w); err != nil {
		http.Error(w, fmt.Sprintf("failed to render buckets page: %v", err), http.StatusInternalServerError)
	}
}

func (b *browser) bucketContents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucket := r.PathValue("bucket")
	if bucket == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	prefix := r.PathValue("key")

	buckets, err := b.listUIBuckets(ctx)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list buckets: %v", err), http.StatusInternalServerError)
		return
	}

	objects := make([]ui.Object, 0, 64)
	for obj := range b.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: false, Prefix: prefix}) {
		if obj.Err != nil {
			slog.Error("ListObjects error", "bucket", bucket, "err", obj.Err)
			continue
		}
		objects = append(objects, ui.Object{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified.UTC().Format(time.RFC3339),
		})
	}

	if err := ui.ObjectsPage(buckets, bucket, prefix, objects).Render(ctx, w); err != nil {
		http.Error(w, fmt.Sprintf("failed to render objects page: %v", err), http.StatusInternalServerError)
	}
}

func (b *browser) createBucket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		http.Error(w, fmt.Sprintf("failed to parse form: %v", err), http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		fail(w, r, http.StatusBadRequest, "bucket name is required")
		return
	}

	if err := b.client.MakeBucket(ctx, name, minio.MakeBucketOptions{}); err != nil {
		slog.Error("failed to create bucket", "bucket", name, "err", err)
		fail(w, r, http.StatusInternalServerError, fmt.Sprintf("failed to create bucket: %v", err))
		return
	}

	redirectURL := "/bucket/" + name + "/"
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", redirectURL)
		w.WriteHeader(http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, redirectURL, http.StatusSeeOther)
}

func fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if r.Header.Get("HX-Request") == "true" {
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, "<p class=\"error-message\">%s</p>", html.EscapeString(msg))
		return
	}
	http.Error(w, msg, status)
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func run(ctx context.Context) error {
	httpPort := getenv("DEPOT_UI_PORT", "9100")
	s3Endpoint := getenv("DEPOT_UI_S3_ENDPOINT", "localhost:8014")
	s3AccessKey := getenv("DEPOT_UI_S3_ACCESS_KEY", "depotadmin")
	s3SecretKey := getenv("DEPOT_UI_S3_SECRET_KEY", "depotadmin")
	s3UseSSL := getenv("DEPOT_UI_S3_SSL", "false") == "true"

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           log.InfoLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    true,
	})
	slog.SetDefault(slog.New(handler))

	client, err := minio.New(s3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(s3AccessKey, s3SecretKey, ""),
		Secure: s3UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	b := &browser{client: client}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", b.home)
	mux.HandleFunc("GET /bucket/{bucket}/{key...}", b.bucketContents)
	mux.HandleFunc("POST /buckets", b.createBucket)

	srv := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	slog.Info("starting depot browser", "port", httpPort, "s3_endpoint", s3Endpoint)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("depot browser server failed: %w", err)
	}
	return nil
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
