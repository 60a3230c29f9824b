// Package dhclientlog is a thin façade over github.com/AdguardTeam/golibs/log,
// giving cmd/dhclient a single place to configure verbosity without every
// package importing golibs/log directly for that purpose alone.
package dhclientlog

import "github.com/AdguardTeam/golibs/log"

// SetVerbose switches between Info and Debug severity, matching the "-v"
// flag a small CLI would expose alongside dhclient-script's own reason
// codes.
func SetVerbose(verbose bool) {
	if verbose {
		log.SetLevel(log.DEBUG)

		return
	}

	log.SetLevel(log.INFO)
}
