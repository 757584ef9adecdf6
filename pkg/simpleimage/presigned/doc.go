// Package presigned provides HMAC-signed download URLs for blob stores
// that cannot sign URLs themselves, such as the filesystem and memory
// backends.
//
// A Signer implements simpleimage.URLSigner. The Handler validates the
// signature and expiry and streams the object.
//
//	signer := presigned.New(
//		presigned.WithSecretKey(os.Getenv("PRESIGN_SECRET_KEY")),
//		presigned.WithBaseURL("https://img.example.com"),
//	)
//	r.Handle(signer.PathPrefix()+"/*", presigned.NewHandler(signer, store, logger))
//
// The signed payload is METHOD|PATH?QUERY|EXPIRES with the disposition
// and filename parameters included, so neither can be altered without
// invalidating the URL.
package presigned
