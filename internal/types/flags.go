package types

// GlobalFlags holds the persistent command line flags
type GlobalFlags struct {
	Config       string
	OutputFormat OutputFormat
	Quiet        bool
	Verbose      bool
	Debug        bool
	LogFile      string
	JSON         bool
	Workers      int
}
