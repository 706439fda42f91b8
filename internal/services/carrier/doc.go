// Package carrier writes partial shipment updates to the carrier system.
//
// Only PATCH is supported and only shipflow-owned fields may be sent. The
// External Write Queue drives this client behind a shared token bucket.
package carrier
