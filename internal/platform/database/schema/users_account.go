package schema

// UserAccountTable represents the 'users.account' table
type UserAccountTable struct {
	Table               string
	ID                  string
	FirstName           string
	LastName            string
	Email               string
	PasswordHash        string
	Role                string
	IsEmailVerified     string
	OTPHash             string
	ResetTokenHash      string
	ResetTokenExpiresAt string
	RefreshTokenHash    string
	PasswordChangedAt   string
	ImageName           string
	CreatedAt           string
	UpdatedAt           string

	// Constraint names surfaced by unique violations
	EmailKey      string
	ResetTokenKey string
}

// UserAccount is the schema definition for users.account
var UserAccount = UserAccountTable{
	Table:               "users.account",
	ID:                  "id",
	FirstName:           "firstname",
	LastName:            "lastname",
	Email:               "email",
	PasswordHash:        "passwordhash",
	Role:                "role",
	IsEmailVerified:     "isemailverified",
	OTPHash:             "otphash",
	ResetTokenHash:      "resettokenhash",
	ResetTokenExpiresAt: "resettokenexpiresat",
	RefreshTokenHash:    "refreshtokenhash",
	PasswordChangedAt:   "passwordchangedat",
	ImageName:           "imagename",
	CreatedAt:           "createdat",
	UpdatedAt:           "updatedat",

	EmailKey:      "account_email_key",
	ResetTokenKey: "account_resettokenhash_key",
}

// PublicColumns returns the columns every read selects. Secret hashes are
// excluded and must be requested explicitly.
func (t UserAccountTable) PublicColumns() []string {
	return []string{
		t.ID, t.FirstName, t.LastName, t.Email, t.Role, t.IsEmailVerified,
		t.PasswordChangedAt, t.ImageName, t.CreatedAt, t.UpdatedAt,
	}
}
