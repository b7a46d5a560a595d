// Package ossupload signs and performs a single-file form upload to an OSS bucket.
//
// An upload takes four steps:
//
//   - fetch a short-lived credential from the application backend (credential.Provider)
//   - derive an opaque object key for the file (objectkey.Generator)
//   - build the POST policy and sign it with the credential secret (policy)
//   - hand the multipart form to a Transport and report the public object URL
//
// # Basic Usage
//
//	provider := credential.NewHTTPProvider("https://api.example.com/user/oss/token",
//	    credential.WithBearerToken(sessionToken))
//	uploader := ossupload.New(provider, ossupload.WithKeyPrefix("test/"))
//
//	file, err := ossupload.FileFromPath("/tmp/avatar.jpg")
//	result, err := uploader.Upload(ctx, file)
//	// result.URL: https://cdn.example.com/test/2024-01-02/t7vh9dh2z30v0000.jpg
//
// # Transports
//
// HTTPTransport (the default) posts the form directly to the bucket endpoint.
// The transport/s3 package uploads through an S3-compatible API instead.
// Hosts that own the network stack (mobile shells, test doubles) implement Transport
// themselves.
package ossupload
