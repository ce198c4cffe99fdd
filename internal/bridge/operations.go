package bridge

import (
	"context"
	"strings"
)

// Backend operation names.
const (
	OpCheckAuth       = "check_auth"
	OpRequestCode     = "request_code"
	OpSignIn          = "sign_in"
	OpLogout          = "logout"
	OpRequestQR       = "request_qr"
	OpCheckQRStatus   = "check_qr_status"
	OpListFiles       = "list_files"
	OpPickAndUpload   = "pick_and_upload_file"
	OpDownloadFile    = "download_file"
	OpRenameFile      = "rename_file"
	OpDeleteFile      = "delete_file"
	OpHasPasscode     = "has_passcode"
	OpSetPasscode     = "set_passcode"
	OpVerifyPasscode  = "verify_passcode"
	OpResetEncryption = "reset_encryption"
	OpChangePasscode  = "change_passcode"
	OpLog             = "log"
)

// User is the signed-in account as reported by check_auth.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Phone     string `json:"phone"`
}

// DisplayName returns the best human label for the user.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	switch {
	case name != "":
		return name
	case u.Username != "":
		return "@" + u.Username
	default:
		return u.Phone
	}
}

// AuthStatus is the check_auth result.
type AuthStatus struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user"`
}

// FileChunk describes one stored chunk of a file.
type FileChunk struct {
	Index     int    `json:"index"`
	MessageID int64  `json:"message_id"`
	Size      int64  `json:"size"`
	Hash      string `json:"hash"`
}

// FileMetadata is one entry of list_files and the subject of a transfer.
type FileMetadata struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Size              int64       `json:"size"`
	Chunks            []FileChunk `json:"chunks,omitempty"`
	Hash              string      `json:"hash,omitempty"`
	MimeType          string      `json:"mime_type,omitempty"`
	MetadataMessageID int64       `json:"metadata_message_id,omitempty"`
}

// UploadStatus is the acknowledgement state of pick_and_upload_file.
type UploadStatus string

const (
	UploadStarted   UploadStatus = "started"
	UploadCancelled UploadStatus = "cancelled"
)

// UploadAck is the pick_and_upload_file result. File is the picked base name.
type UploadAck struct {
	Status UploadStatus `json:"status"`
	File   string       `json:"file,omitempty"`
}

// DownloadAck is the download_file result.
type DownloadAck struct {
	Status string `json:"status"`
}

// Result is the generic {success, error} shape used by set_passcode,
// change_passcode, rename_file, delete_file, request_code and logout.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SignInResult is the sign_in result.
type SignInResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NeedsPassword reports whether the account requires a 2FA password.
func (r SignInResult) NeedsPassword() bool {
	return r.Status == "needs_password"
}

// QRRequest is the request_qr result.
type QRRequest struct {
	URL       string `json:"qr_url"`
	TokenID   string `json:"token_id"`
	ExpiresIn int    `json:"expires_in"`
}

// QRState is the status reported by check_qr_status.
type QRState string

const (
	QRWaiting   QRState = "waiting"
	QRConfirmed QRState = "confirmed"
	QRExpired   QRState = "expired"
	QRError     QRState = "error"
)

// QRStatus is the check_qr_status result.
type QRStatus struct {
	Status        QRState `json:"status"`
	NeedsPassword bool    `json:"needs_password,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Done reports whether polling can stop.
func (s QRStatus) Done() bool {
	return s.Status != QRWaiting && s.Status != ""
}

// PasscodeStatus is the has_passcode result.
type PasscodeStatus struct {
	HasPasscode bool `json:"has_passcode"`
}

// Verify rejection codes.
const (
	VerifyLockedOut       = "locked_out"
	VerifyTooManyAttempts = "too_many_attempts"
	VerifyIncorrect       = "incorrect"
)

// VerifyResult is the verify_passcode result. Exactly one of four shapes:
// valid; incorrect with AttemptsRemaining; locked_out with RetryAfter
// seconds; too_many_attempts with LockedFor seconds.
type VerifyResult struct {
	Valid             bool   `json:"valid"`
	Error             string `json:"error,omitempty"`
	Message           string `json:"message,omitempty"`
	RetryAfter        int    `json:"retry_after,omitempty"`
	LockedFor         int    `json:"locked_for,omitempty"`
	AttemptsRemaining int    `json:"attempts_remaining,omitempty"`
}

// ResetResult is the reset_encryption result.
type ResetResult struct {
	Success               bool   `json:"success"`
	Error                 string `json:"error,omitempty"`
	PasscodeDeleted       int    `json:"passcode_deleted"`
	EncryptedFilesDeleted int    `json:"encrypted_files_deleted"`
	ChunksDeleted         int    `json:"chunks_deleted"`
}

// CheckAuth queries the authentication status.
func (a *Adapter) CheckAuth(ctx context.Context) (AuthStatus, error) {
	return decode[AuthStatus](ctx, a, OpCheckAuth)
}

// RequestCode asks the backend to send a login code to phone.
func (a *Adapter) RequestCode(ctx context.Context, phone string) (Result, error) {
	return decode[Result](ctx, a, OpRequestCode, phone)
}

// SignIn completes a code login. An empty password is sent as null.
func (a *Adapter) SignIn(ctx context.Context, phone, code, password string) (SignInResult, error) {
	var pw any
	if password != "" {
		pw = password
	}
	return decode[SignInResult](ctx, a, OpSignIn, phone, code, pw)
}

// Logout signs the backend session out.
func (a *Adapter) Logout(ctx context.Context) (Result, error) {
	return decode[Result](ctx, a, OpLogout)
}

// RequestQR starts a QR login.
func (a *Adapter) RequestQR(ctx context.Context) (QRRequest, error) {
	return decode[QRRequest](ctx, a, OpRequestQR)
}

// CheckQRStatus polls a QR login.
func (a *Adapter) CheckQRStatus(ctx context.Context, tokenID string) (QRStatus, error) {
	return decode[QRStatus](ctx, a, OpCheckQRStatus, tokenID)
}

// ListFiles returns the stored files in backend order.
func (a *Adapter) ListFiles(ctx context.Context) ([]FileMetadata, error) {
	files, err := decode[[]FileMetadata](ctx, a, OpListFiles)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []FileMetadata{}
	}
	return files, nil
}

// PickAndUpload asks the backend to open its native picker and start an
// upload. It returns on acknowledgement, not on completion.
func (a *Adapter) PickAndUpload(ctx context.Context) (UploadAck, error) {
	return decode[UploadAck](ctx, a, OpPickAndUpload)
}

// DownloadFile asks the backend to start downloading fileID.
func (a *Adapter) DownloadFile(ctx context.Context, fileID string) (DownloadAck, error) {
	return decode[DownloadAck](ctx, a, OpDownloadFile, fileID)
}

// RenameFile renames a stored file.
func (a *Adapter) RenameFile(ctx context.Context, fileID, newName string, metadataMessageID int64) (Result, error) {
	return decode[Result](ctx, a, OpRenameFile, fileID, newName, metadataMessageID)
}

// DeleteFile deletes a stored file.
func (a *Adapter) DeleteFile(ctx context.Context, fileID string, metadataMessageID int64) (Result, error) {
	return decode[Result](ctx, a, OpDeleteFile, fileID, metadataMessageID)
}

// HasPasscode reports whether a passcode is configured.
func (a *Adapter) HasPasscode(ctx context.Context) (PasscodeStatus, error) {
	return decode[PasscodeStatus](ctx, a, OpHasPasscode)
}

// SetPasscode configures a new passcode.
func (a *Adapter) SetPasscode(ctx context.Context, passcode string) (Result, error) {
	return decode[Result](ctx, a, OpSetPasscode, passcode)
}

// VerifyPasscode submits one verification attempt.
func (a *Adapter) VerifyPasscode(ctx context.Context, passcode string) (VerifyResult, error) {
	return decode[VerifyResult](ctx, a, OpVerifyPasscode, passcode)
}

// ResetEncryption wipes the passcode and encrypted artifacts.
func (a *Adapter) ResetEncryption(ctx context.Context) (ResetResult, error) {
	return decode[ResetResult](ctx, a, OpResetEncryption)
}

// ChangePasscode rotates the passcode after re-verifying the old one.
func (a *Adapter) ChangePasscode(ctx context.Context, oldPasscode, newPasscode string) (Result, error) {
	return decode[Result](ctx, a, OpChangePasscode, oldPasscode, newPasscode)
}
