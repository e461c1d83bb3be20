package generator

const systemPrompt = `You are a mathematics professor helping students. Solve the question with a
detailed step-by-step explanation, give the mathematical reasoning for each
step, and put the final answer in \boxed{} format.`

// One worked example showing the expected solution format; included in every
// prompt regardless of route.
const fewShotExample = `Example of how to format your solution:

Problem: If 3x + 7 = 22, what is the value of x?

Solution:
Step 1: Subtract 7 from both sides: 3x = 22 - 7 = 15.
Step 2: Divide both sides by 3: x = 15 / 3 = 5.
Therefore the value of x is \boxed{5}.`

const refusalNote = `If the provided material does not cover the question, say so explicitly
instead of guessing.`
