// Package espp computes the Norwegian tax consequences of holding
// foreign-listed employee shares (ESPP purchases and RSU vestings) in a
// broker account abroad.
//
// The core functionalities include:
//   - Lot Ledger: A FIFO ledger of share lots, each carrying its
//     acquisition date, cost basis witnessed in NOK, and the tax-free
//     deduction balance accrued against it.
//   - Tax-Free Deduction: Year-end accrual of the risk-free deduction
//     (skjermingsfradrag) per held lot, spending it FIFO against
//     dividends during the year and against gains on sale.
//   - Transaction Replay: A state machine that replays one calendar year
//     of broker transactions over an opening holdings snapshot and
//     produces the annual tax report plus the closing snapshot.
//   - Currency Gains: Matching cash transfers out of the account against
//     bank records, aggregating the currency gain with the underlying
//     sale or dividend when the wire settles within fourteen days.
//   - Holdings Reconstruction: Rebuilding a missing opening snapshot
//     from a multi-year transaction history, conservatively forfeiting
//     deduction balances the history cannot prove intact.
//
// This package serves as the foundational logic for the `esk`
// command-line tool and the HTTP service under web, ensuring that all
// reports are derived from a single replay engine.
package espp
