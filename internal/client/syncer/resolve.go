package syncer

import "github.com/dmitrijs2005/herpsync/internal/record"

// LastWriterWins keeps whichever version has the later updated_at. Ties go
// to the remote version.
func LastWriterWins(local, remote *record.Record) *record.Record {
	if local == nil || !remote.UpdatedAt.Before(local.UpdatedAt) {
		return remote
	}
	return local
}

// FieldMerge picks the winner like LastWriterWins and then fills in data
// fields that only the losing version carries. It is an alternative
// strategy and is not used unless configured.
func FieldMerge(local, remote *record.Record) *record.Record {
	winner := LastWriterWins(local, remote)
	if local == nil {
		return winner
	}

	loser := local
	if winner == local {
		loser = remote
	}

	merged := winner.Clone()
	added := false
	for k, v := range loser.Data {
		if _, ok := merged.Data[k]; !ok {
			merged.Data[k] = v
			added = true
		}
	}
	if winner == local && !added {
		return local
	}
	return merged
}
