package dto

// ActivateLicenseRequest is the public activation payload. The raw
// hwid never leaves the request scope; only its hash is stored.
type ActivateLicenseRequest struct {
	AppID      int64  `json:"app_id" binding:"required,gt=0"`
	LicenseKey string `json:"license_key" binding:"required"`
	HWID       string `json:"hwid" binding:"required"`
}

type ActivateLicenseResponse struct {
	Token string `json:"token"`
}
