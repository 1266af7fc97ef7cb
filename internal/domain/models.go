package domain

import "time"

type Drug struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Expiry   string  `json:"expiry"`
	Supplier string  `json:"supplier"`
}

type DrugRequest struct {
	ID       string  `json:"id,omitempty"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Expiry   string  `json:"expiry"`
	Supplier string  `json:"supplier,omitempty"`
}

type Sale struct {
	ID            string  `json:"id"`
	DrugID        string  `json:"drug_id"`
	DrugName      string  `json:"drug_name"`
	Quantity      int     `json:"quantity"`
	Price         float64 `json:"price"`
	Total         float64 `json:"total"`
	CustomerName  string  `json:"customer_name"`
	PaymentMethod string  `json:"payment_method"`
	Date          string  `json:"date"`
	Time          string  `json:"time"`
	SoldBy        string  `json:"sold_by"`
}

type SaleRequest struct {
	DrugID        string  `json:"drug_id"`
	Quantity      int     `json:"quantity"`
	Price         float64 `json:"price"`
	CustomerName  string  `json:"customer_name,omitempty"`
	PaymentMethod string  `json:"payment_method,omitempty"`
	SoldBy        string  `json:"sold_by,omitempty"`
}

type User struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Type     string `json:"type"`
}

type AuditEntry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	IPAddress string `json:"ip_address"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
	Type        string `json:"type"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Type     string
}

// ExportDocument is the backup/restore payload. Import replaces drugs and
// sales unconditionally and users only when present in the document.
type ExportDocument struct {
	Drugs      []Drug    `json:"drugs"`
	Sales      []Sale    `json:"sales"`
	Users      []User    `json:"users,omitempty"`
	ExportDate time.Time `json:"exportDate"`
}

type Settings struct {
	Language         string `json:"language"`
	CloudSyncEnabled bool   `json:"cloud_sync_enabled"`
	LastSyncTime     string `json:"last_sync_time,omitempty"`
}

const (
	UserTypeAdmin = "admin"
	UserTypeUser  = "user"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

const (
	ActionLogin          = "login"
	ActionLogout         = "logout"
	ActionAddDrug        = "add_drug"
	ActionEditDrug       = "edit_drug"
	ActionDeleteDrug     = "delete_drug"
	ActionSale           = "sale"
	ActionDeleteSale     = "delete_sale"
	ActionAddUser        = "add_user"
	ActionChangePassword = "change_password"
	ActionExportData     = "export_data"
	ActionImportData     = "import_data"
	ActionSyncToCloud    = "sync_to_cloud"
	ActionSyncFromCloud  = "sync_from_cloud"
)
