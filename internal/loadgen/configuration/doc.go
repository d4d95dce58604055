/*
Package configuration defines the load generator's configuration types.

There are two kinds of configuration:

  - LoadRequest describes one run: batch size, target batch rate, duration and worker count.
    It arrives with a start request (HTTP body or command line flags) and is validated on every start.
  - Configuration describes the process: logging, engine tuning, which sink to write to and how to reach it,
    and the HTTP listener. It is loaded once at startup from YAML via viper, with LOADGEN_ prefixed
    environment variables taking precedence.

Enumerated settings (CapacityPolicy, SinkKind, compression codec) implement encoding.TextUnmarshaler so
that invalid values are rejected while the config is being decoded.
*/
package configuration
