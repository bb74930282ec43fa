// Package factimage exports the raw factory image of a device's EFS
// storage.
//
// The export runs PREP_FACT_IMAGE, FACT_IMAGE_START, a header read, one
// FACT_IMAGE_READ per page and finally FACT_IMAGE_END. The page count
// comes from the FactoryHeader in the first reply. Each reply carries the
// cursor for the next request.
package factimage
