/*
Package registry implements the file-backed worker registry shared between
the supervising process and each worker process.

Each descriptor lives in its own JSON file under <dataDir>/workers/. The
layout keeps cross-process coordination lock-free: the supervisor writes
identity fields before spawning, the worker writes its bound port and URL
after, and neither side ever writes a field owned by the other. Writes are
committed with a temp-file rename so partial records are never visible.

List and FindByCorrelationKey tolerate corrupt entries by skipping them; a
damaged file can never block enumeration of the healthy ones.
*/
package registry
