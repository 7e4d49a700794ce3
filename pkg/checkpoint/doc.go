// Package checkpoint records the progress of a warm run so that an
// interrupted batch can be resumed without looking up finished URLs again.
//
// A checkpoint tracks:
//   - the URL list the run was started from
//   - every URL that completed and the content ID it resolved to
//   - run statistics
//
// Checkpoints are stored in platform-specific data directories:
//   - Linux: ~/.local/share/sharetok/checkpoints/
//   - macOS: ~/Library/Application Support/sharetok/checkpoints/
//   - Windows: %APPDATA%/sharetok/checkpoints/
//
// Files are replaced atomically and carry a version for future compatibility.
package checkpoint
