/*
Package httpserver exposes the device share storage module over HTTP.

# Share API Endpoints

  - GET /api/share/{key} - Read a share record (primary store, then secondary)
  - PUT /api/share/{key} - Write a share record to the primary store
  - POST /api/share/{key}/export - Export a share record to the secondary store
  - GET /api/capability - Report whether the secondary store may be used
  - POST /api/capability - Deliver a host permission change

Failed share requests answer with a JSON body carrying the storage error
code and message:

	{"code":1101,"message":"unableToReadFromStorageError inputShareFromWebStorage: ..."}

Writes accept an optional X-Device-Info header holding a JSON object, which
is recorded in the share description.

# Health Endpoints

  - GET /livez - Liveness check
  - GET /readyz - Readiness check, failing once shutdown begins

# Example Usage

	handler := httpserver.NewHandler(module, tracker, querier, logger)
	server, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               ":8080",
		Log:                      logger,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              5 * time.Second,
		WriteTimeout:             10 * time.Second,
	}, handler)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver
