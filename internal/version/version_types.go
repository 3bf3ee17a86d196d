package version

type GetVersionRequest struct{}

type GetVersionResponse struct {
	BuildInfo
	Nodes         int   `json:"nodes"`
	CheckedAtUnix int64 `json:"checked_at_unix"`
}
