package domain

// domain package contains the names and layout shared by everything handling runs.
//
// # Entities
//
// - `node`: a typed experiment program. It takes Args (a struct) and returns a Result.
// Implementations live in `pkg/node`.
//
// - `run`: one execution of a node. A run is identified by its key,
// `<NodeName>_<UTC timestamp>`, and all of its records are stored in the directory named after the key.
// A directory is a run if and only if it has ArgsFile.
// A run is completed if and only if it has ResultFile. Otherwise it has failed (or is still running).
// Listing and filtering runs is in `pkg/domain/run`.
//
// - `storage`: the local directory holding runs, and its optional remote mirror.
// Implementation is in `pkg/storage`.
