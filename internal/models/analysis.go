package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CSVUpload statuses.
const (
	UploadStatusProcessing = "PROCESSING"
	UploadStatusSuccess    = "SUCCESS"
	UploadStatusFailed     = "FAILED"
)

// Customer types reported per upload.
const (
	CustomerTypeNew    = "New"
	CustomerTypeRepeat = "Repeat"
)

// CSVUpload is one ingestion batch. Its status field is the durable
// record of batch-level success or failure that clients poll.
type CSVUpload struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	FileName     string     `gorm:"size:255" json:"file_name"`
	Status       string     `gorm:"size:50;default:PROCESSING" json:"status"`
	TotalRows    int        `gorm:"default:0" json:"total_rows"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`

	OrderRecords    []CSVOrderRecord   `gorm:"foreignKey:UploadID;constraint:OnDelete:CASCADE" json:"-"`
	AnalysisRecords []CustomerAnalysis `gorm:"foreignKey:UploadID;constraint:OnDelete:CASCADE" json:"-"`
}

func (u *CSVUpload) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.UploadedAt.IsZero() {
		u.UploadedAt = time.Now()
	}
	return nil
}

// CSVOrderRecord is a raw per-line-item fact from an upload, immutable
// once written. The composite natural key tolerates partial retries of
// the same upload: replayed lines hit the unique index and are skipped.
type CSVOrderRecord struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	UploadID      uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_csv_records_natural" json:"upload_id"`
	OrderID       string    `gorm:"size:64;not null;uniqueIndex:idx_csv_records_natural" json:"order_id"`
	CustomerPhone string    `gorm:"size:50;not null;index;uniqueIndex:idx_csv_records_natural" json:"customer_phone"`
	ProductName   string    `gorm:"size:255;uniqueIndex:idx_csv_records_natural" json:"product_name"`
	CustomerName  string    `gorm:"size:255" json:"customer_name"`
	City          string    `gorm:"size:255" json:"city"`
	OrderDate     time.Time `json:"order_date"`
	OrderAmount   float64   `json:"order_amount"`
	RawData       datatypes.JSON `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r *CSVOrderRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// CustomerAnalysis is a per-upload snapshot of one customer's stats as
// observed in that upload only. Unique per (upload_id, customer_phone);
// reprocessing the same upload upserts, it does not add.
type CustomerAnalysis struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	UploadID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_analysis_upload_phone" json:"upload_id"`
	CustomerPhone  string         `gorm:"size:50;not null;uniqueIndex:idx_analysis_upload_phone" json:"customer_phone"`
	CustomerName   string         `gorm:"size:255" json:"customer_name"`
	Location       string         `gorm:"size:255" json:"location"`
	TotalOrders    int            `gorm:"default:0" json:"total_orders"`
	CustomerType   string         `gorm:"size:20" json:"customer_type"`
	ProductsBought datatypes.JSON `json:"products_bought"`
	OrderIDs       datatypes.JSON `json:"order_ids"`
	Locations      datatypes.JSON `json:"locations"`
	FirstOrderDate time.Time      `json:"first_order_date"`
	LastOrderDate  time.Time      `json:"last_order_date"`
	TotalSpent     float64        `json:"total_spent"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (a *CustomerAnalysis) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Customer is the durable cross-upload identity, keyed by normalized
// phone. TotalOrders counts distinct order ids ever seen for the phone;
// it is maintained additively on ingest and fully recomputed from
// surviving CSVOrderRecords when an upload is deleted.
type Customer struct {
	Phone              string         `gorm:"size:50;primary_key" json:"phone"`
	Name               string         `gorm:"size:255" json:"name"`
	City               string         `gorm:"size:255" json:"city"`
	TotalOrders        int            `gorm:"default:0" json:"total_orders"`
	IsRepeatCustomer   bool           `gorm:"default:false;index" json:"is_repeat_customer"`
	TotalSpent         float64        `gorm:"default:0" json:"total_spent"`
	ProductsBought     datatypes.JSON `json:"products_bought"`
	AllCities          datatypes.JSON `json:"all_cities"`
	LastProductOrdered string         `gorm:"size:255" json:"last_product_ordered"`
	FirstOrderDate     *time.Time     `json:"first_order_date,omitempty"`
	LastOrderDate      *time.Time     `json:"last_order_date,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Products returns the product set decoded from storage.
func (c *Customer) Products() []string { return decodeStrings(c.ProductsBought) }

// SetProducts encodes the product set for storage.
func (c *Customer) SetProducts(products []string) { c.ProductsBought = encodeStrings(products) }

// Cities returns the city set decoded from storage.
func (c *Customer) Cities() []string { return decodeStrings(c.AllCities) }

// SetCities encodes the city set for storage.
func (c *Customer) SetCities(cities []string) { c.AllCities = encodeStrings(cities) }

// Set fields live as []string in memory; JSON only exists at the storage
// boundary.
func encodeStrings(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return datatypes.JSON(data)
}

func decodeStrings(data datatypes.JSON) []string {
	if len(data) == 0 {
		return nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil
	}
	return values
}

// EncodeStrings exposes the storage-boundary encoding for sibling rows
// (CustomerAnalysis) that carry the same set-valued columns.
func EncodeStrings(values []string) datatypes.JSON { return encodeStrings(values) }

// DecodeStrings is the inverse of EncodeStrings.
func DecodeStrings(data datatypes.JSON) []string { return decodeStrings(data) }
