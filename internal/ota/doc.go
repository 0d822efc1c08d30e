// Package ota receives firmware images streamed from the captive portal.
//
// Updater is the collaborator contract; FileUpdater stages an image on disk
// and moves it into place only when the upload is committed. Flashing the
// staged image is the platform's job.
package ota
