// Package files signs direct-to-S3 uploads for the signS3 mutation.
package files
