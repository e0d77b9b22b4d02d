// Package benchmark measures how well the firewall catches hallucinated
// outputs.
//
// Suite holds known hallucinations (wrong facts stated with high confidence
// and no sources) and grounded statements with sources. Run evaluates each
// case and reports the detection rate, the false positive rate and overall
// accuracy. A hallucination counts as detected when the verdict is BLOCK or
// REQUIRE_HUMAN_REVIEW; a grounded case is correct only when it is allowed.
//
// Reports render as tables, CSV and JUnit XML through package cli.
package benchmark
