// Package preflight provides readiness checks for the filesystem paths,
// database, catalog, and collaborator endpoints shipflow depends on.
//
// The CLI "shipflow preflight" command runs RunAll before a daemon is started
// and "shipflow status" reuses the individual checks. Collaborators without a
// configured URL run as no-ops and are reported as disabled.
package preflight
