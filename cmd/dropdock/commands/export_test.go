package commands

type (
	NewUploader = newUploader
	NewClient   = newClient

	UploadManager = uploadManager
)

// SetArgs sets the arguments for the command.
func (a *App) SetArgs(args []string) {
	a.cmd.SetArgs(args)
}

// WithNewUploader sets the new uploader function for the app.
func WithNewUploader(nu NewUploader) Options {
	return func(o *options) {
		o.newUploader = nu
	}
}

// WithNewClient sets the new server client function for the app.
func WithNewClient(nc NewClient) Options {
	return func(o *options) {
		o.newClient = nc
	}
}
