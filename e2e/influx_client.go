package e2e

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxReader reads back what the metrics sink wrote so tests can assert
// on it. It also makes sure the bucket exists.
type InfluxReader struct {
	org    string
	bucket string
	client influxdb2.Client
	query  api.QueryAPI
}

func NewInfluxReader(url, org, bucket, token string) *InfluxReader {
	c := influxdb2.NewClient(url, token)
	return &InfluxReader{org: org, bucket: bucket, client: c, query: c.QueryAPI(org)}
}

// SetupBucket creates the organisation and bucket when missing.
func (r *InfluxReader) SetupBucket(ctx context.Context) error {
	orgAPI := r.client.OrganizationsAPI()
	org, err := orgAPI.FindOrganizationByName(ctx, r.org)
	if err != nil || org == nil {
		if org, err = orgAPI.CreateOrganizationWithName(ctx, r.org); err != nil {
			return fmt.Errorf("create org: %w", err)
		}
	}
	bucketAPI := r.client.BucketsAPI()
	if b, err := bucketAPI.FindBucketByName(ctx, r.bucket); err == nil && b != nil {
		return nil
	}
	if _, err := bucketAPI.CreateBucketWithName(ctx, org, r.bucket); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Count returns how many field values of measurement were written in the
// last hour.
func (r *InfluxReader) Count(ctx context.Context, measurement string) (int, error) {
	flux := fmt.Sprintf(`from(bucket:%q) |> range(start:-1h) |> filter(fn: (r) => r._measurement == %q)`,
		r.bucket, measurement)
	res, err := r.query.Query(ctx, flux)
	if err != nil {
		return 0, err
	}
	defer res.Close()
	n := 0
	for res.Next() {
		n++
	}
	return n, res.Err()
}

func (r *InfluxReader) Close() { r.client.Close() }
