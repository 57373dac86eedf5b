package model

import "time"

// SourceTypeBasemaps tags orders that draw from basemap mosaics.
const SourceTypeBasemaps = "basemaps"

// OrderSpec describes what the ordering service should produce and where to deliver it.
type OrderSpec struct {
	Name          string         `json:"name"`
	SourceType    string         `json:"source_type,omitempty"`
	Products      []Product      `json:"products"`
	Tools         []Tool         `json:"tools,omitempty"`
	Delivery      Delivery       `json:"delivery"`
	Notifications *Notifications `json:"notifications,omitempty"`
}

// Product selects imagery from one mosaic, either by area of interest or by quad.
type Product struct {
	MosaicName string    `json:"mosaic_name"`
	Geometry   *Geometry `json:"geometry,omitempty"`
	QuadIDs    []string  `json:"quad_ids,omitempty"`
}

// Geometry is a GeoJSON polygon.
type Geometry struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// NewPolygon builds a Polygon geometry from a single exterior ring.
func NewPolygon(ring [][]float64) *Geometry {
	return &Geometry{Type: "Polygon", Coordinates: [][][]float64{ring}}
}

// Notifications controls service-side notification of order completion.
type Notifications struct {
	Email   bool   `json:"email,omitempty"`
	Webhook string `json:"webhook_url,omitempty"`
}

// Delivery tells the service where delivered artifacts go and how they are packaged.
type Delivery struct {
	AmazonS3           *AmazonS3Delivery           `json:"amazon_s3,omitempty"`
	GoogleCloudStorage *GoogleCloudStorageDelivery `json:"google_cloud_storage,omitempty"`
	AzureBlobStorage   *AzureBlobStorageDelivery   `json:"azure_blob_storage,omitempty"`

	ArchiveType     string `json:"archive_type,omitempty"` // e.g. "zip"
	SingleArchive   bool   `json:"single_archive,omitempty"`
	ArchiveFilename string `json:"archive_filename,omitempty"`
}

// IsEmpty reports whether the descriptor names neither a destination nor packaging.
func (d Delivery) IsEmpty() bool {
	return d.AmazonS3 == nil &&
		d.GoogleCloudStorage == nil &&
		d.AzureBlobStorage == nil &&
		d.ArchiveType == "" &&
		!d.SingleArchive
}

// AmazonS3Delivery delivers into an S3 bucket.
type AmazonS3Delivery struct {
	Bucket          string `json:"bucket"`
	Region          string `json:"aws_region"`
	AccessKeyID     string `json:"aws_access_key_id"`
	SecretAccessKey string `json:"aws_secret_access_key"`
	PathPrefix      string `json:"path_prefix,omitempty"`
}

// GoogleCloudStorageDelivery delivers into a GCS bucket.
// Credentials is the base64-encoded service account key.
type GoogleCloudStorageDelivery struct {
	Bucket      string `json:"bucket"`
	Credentials string `json:"credentials"`
	PathPrefix  string `json:"path_prefix,omitempty"`
}

// AzureBlobStorageDelivery delivers into an Azure blob container.
type AzureBlobStorageDelivery struct {
	Account               string `json:"account"`
	Container             string `json:"container"`
	SASToken              string `json:"sas_token"`
	StorageEndpointSuffix string `json:"storage_endpoint_suffix,omitempty"`
	PathPrefix            string `json:"path_prefix,omitempty"`
}

// OrderHandle identifies a submitted order.
type OrderHandle struct {
	ID       string `json:"id"`
	Location string `json:"location"` // self link
}

// OrderStatus is the outcome of a single status query.
type OrderStatus struct {
	State   OrderState
	Results ResultManifest
}

// ResultManifest lists the artifacts delivered for an order.
type ResultManifest []ResultArtifact

// ResultArtifact is one delivered file.
type ResultArtifact struct {
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	Delivery  string    `json:"delivery,omitempty"` // per-artifact delivery state
}

// Progress is emitted once for every status query the poller performs.
type Progress struct {
	OrderID    string        `json:"order_id"`
	State      OrderState    `json:"state"`
	Attempt    int           `json:"attempt"` // 1-based
	Elapsed    time.Duration `json:"elapsed"`
	ObservedAt time.Time     `json:"observed_at"`
}
