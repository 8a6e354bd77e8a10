// Infraction lifecycle for community moderation.
//
// This package holds the shared data model (infractions and their kinds) and the error taxonomy. Sub-packages implement the record store clients, the action executor, the suppression ledger, and the scheduling engine which ties them together.
package moderation
